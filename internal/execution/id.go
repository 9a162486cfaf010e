package execution

import "github.com/google/uuid"

func NewIntentID() string {
	return "int_" + uuid.NewString()
}
