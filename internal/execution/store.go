package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

const lockWait = 5 * time.Second

// Store persists intents and their outcomes. Writers are serialized across
// processes with a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create intent store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create intent lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open intent sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS intents (
			intent_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			signer_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_intents_status_updated ON intents(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init intent schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(intent Intent) error {
	if strings.TrimSpace(intent.IntentID) == "" {
		return fmt.Errorf("save intent: missing intent id")
	}
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	return s.upsert(intent)
}

// Update applies fn to the stored intent under the store lock and persists
// the result. An error from fn aborts the write.
func (s *Store) Update(intentID string, fn func(*Intent) error) (Intent, error) {
	unlock, err := s.acquire()
	if err != nil {
		return Intent{}, err
	}
	defer unlock()

	intent, err := s.Get(intentID)
	if err != nil {
		return Intent{}, err
	}
	if err := fn(&intent); err != nil {
		return Intent{}, err
	}
	intent.Touch()
	if err := s.upsert(intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// Claim moves a planned intent to processing and returns it. Any other
// starting status is a conflict, so an intent can only be dispatched once.
func (s *Store) Claim(intentID string) (Intent, error) {
	return s.Update(intentID, func(intent *Intent) error {
		if intent.Status != IntentStatusPlanned {
			return clierr.New(clierr.CodeConflict, fmt.Sprintf("intent %s already dispatched (status %s)", intentID, intent.Status))
		}
		intent.Status = IntentStatusProcessing
		intent.Outcome = &Outcome{Status: OutcomeProcessing}
		return nil
	})
}

func (s *Store) Get(intentID string) (Intent, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM intents WHERE intent_id = ?", intentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Intent{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("intent not found: %s", intentID))
		}
		return Intent{}, fmt.Errorf("read intent: %w", err)
	}
	var intent Intent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return Intent{}, fmt.Errorf("decode intent payload: %w", err)
	}
	return intent, nil
}

func (s *Store) List(status string, limit int) ([]Intent, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM intents ORDER BY updated_at DESC, created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM intents WHERE status = ? ORDER BY updated_at DESC, created_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	intents := make([]Intent, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan intent row: %w", err)
		}
		var intent Intent
		if err := json.Unmarshal(payload, &intent); err != nil {
			return nil, fmt.Errorf("decode intent row: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent rows: %w", err)
	}
	return intents, nil
}

func (s *Store) acquire() (func(), error) {
	locked, err := s.lock.TryLockContext(context.Background(), lockWait)
	if err != nil {
		return nil, fmt.Errorf("lock intent store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock intent store: timeout acquiring lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func (s *Store) upsert(intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	createdUnix := parseRFC3339Unix(intent.CreatedAt)
	updatedUnix := parseRFC3339Unix(intent.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO intents (intent_id, kind, status, signer_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(intent_id) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, intent.IntentID, intent.Kind, intent.Status, intent.SignerID, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	return nil
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
