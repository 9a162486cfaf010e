// Package schema describes the safepilot surfaces for agents: the command
// tree with its flags and, optionally, the HTTP routes served by `serve`.
package schema

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

type Manifest struct {
	Command CommandSchema `json:"command"`
	Routes  []RouteSchema `json:"routes,omitempty"`
}

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Required    []string        `json:"required,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
}

type RouteSchema struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Build describes the command at commandPath (the root when empty). When
// routes is non-nil its HTTP routes are listed too.
func Build(root *cobra.Command, commandPath string, routes chi.Routes) (Manifest, error) {
	cmd, err := find(root, commandPath)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Command: describe(cmd)}
	if routes != nil {
		list, err := Routes(routes)
		if err != nil {
			return Manifest{}, err
		}
		m.Routes = list
	}
	return m, nil
}

// Routes lists every method and pattern registered on r, sorted by path.
func Routes(r chi.Routes) ([]RouteSchema, error) {
	out := make([]RouteSchema, 0)
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		out = append(out, RouteSchema{Method: method, Path: strings.TrimSuffix(route, "/*")})
		return nil
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "walk http routes", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}

func find(root *cobra.Command, commandPath string) (*cobra.Command, error) {
	cmd := root
	for _, part := range strings.Fields(commandPath) {
		var next *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("command not found: %s", commandPath))
		}
		cmd = next
	}
	return cmd, nil
}

func describe(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:  strings.TrimSpace(cmd.CommandPath()),
		Use:   cmd.Use,
		Short: cmd.Short,
	}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		s.Flags = append(s.Flags, FlagSchema{Name: f.Name, Type: f.Value.Type(), Usage: f.Usage, Default: f.DefValue})
		if ann, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(ann) > 0 && ann[0] == "true" {
			s.Required = append(s.Required, f.Name)
		}
	})
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, describe(sub))
	}
	return s
}
