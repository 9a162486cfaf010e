package schema

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "safepilot"}
	group := &cobra.Command{Use: "intent", Short: "intent cmds"}
	leaf := &cobra.Command{Use: "deploy", Short: "plan a deposit", RunE: func(*cobra.Command, []string) error { return nil }}
	leaf.Flags().Int("percent", 0, "percent of balance")
	leaf.Flags().String("option", "", "option id")
	_ = leaf.MarkFlagRequired("option")
	group.AddCommand(leaf)
	root.AddCommand(group)
	return root
}

func TestBuildCommandSchema(t *testing.T) {
	m, err := Build(testTree(), "intent deploy", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Command.Path != "safepilot intent deploy" {
		t.Fatalf("unexpected path: %s", m.Command.Path)
	}
	if len(m.Command.Flags) != 2 {
		t.Fatalf("unexpected flags: %+v", m.Command.Flags)
	}
	if len(m.Command.Required) != 1 || m.Command.Required[0] != "option" {
		t.Fatalf("unexpected required flags: %+v", m.Command.Required)
	}
	if m.Routes != nil {
		t.Fatalf("expected no routes without a router, got %+v", m.Routes)
	}
}

func TestBuildUnknownCommand(t *testing.T) {
	_, err := Build(testTree(), "intent nuke", nil)
	if cErr, ok := clierr.As(err); !ok || cErr.Code != clierr.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoutesSorted(t *testing.T) {
	r := chi.NewRouter()
	ok := func(http.ResponseWriter, *http.Request) {}
	r.Get("/health", ok)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", ok)
		r.Get("/intents/{intentID}", ok)
	})
	m, err := Build(testTree(), "", r)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(m.Routes) != 3 {
		t.Fatalf("expected 3 routes, got %+v", m.Routes)
	}
	if m.Routes[0].Path != "/api/chat" || m.Routes[0].Method != http.MethodPost {
		t.Fatalf("unexpected first route: %+v", m.Routes[0])
	}
	if m.Routes[2].Path != "/health" {
		t.Fatalf("unexpected last route: %+v", m.Routes[2])
	}
	if len(m.Command.Subcommands) != 1 || m.Command.Subcommands[0].Subcommands[0].Use != "deploy" {
		t.Fatalf("unexpected command tree: %+v", m.Command)
	}
}
