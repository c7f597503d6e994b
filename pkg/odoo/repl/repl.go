// Package repl implements the interactive odoorpc shell.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/odoo"
)

const PROMPT_SUFFIX = " >>> "

// Connector opens the named configured environment and logs in.
type Connector func(ctx context.Context, name string) (*odoo.Client, error)

// Options configures a Shell.
type Options struct {
	Name         string   // label shown in the prompt
	Version      string   // shown in the banner
	HistoryFile  string   // empty disables history
	HistorySize  int      // entries kept in the history file
	Environments []string // names accepted by the env command
	Connect      Connector
	Log          *zap.Logger
}

// Shell runs commands against one client and its active environment.
type Shell struct {
	client *odoo.Client
	env    *odoo.Env
	opts   Options
	out    io.Writer
}

// New returns a shell bound to client. Commands run in the client's
// active environment.
func New(client *odoo.Client, out io.Writer, opts Options) *Shell {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Shell{client: client, env: client.Env(), opts: opts, out: out}
}

// Env returns the environment commands run in.
func (s *Shell) Env() *odoo.Env { return s.env }

// Prompt returns the prompt for the active environment.
func (s *Shell) Prompt() string {
	name := s.opts.Name
	if name == "" {
		name = s.env.Database()
	}
	if name == "" {
		name = "odoo"
	}
	return name + PROMPT_SUFFIX
}

// Run reads commands until exit or Ctrl+D.
func (s *Shell) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.complete)

	// Passwords missing from the configuration are asked on the terminal
	s.client.SetPasswordPrompt(func(user string) (string, error) {
		return line.PasswordPrompt(fmt.Sprintf("Password for %s: ", user))
	})

	if s.opts.HistoryFile != "" {
		if f, err := os.Open(s.opts.HistoryFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer s.saveHistory(line)
	}

	fmt.Fprintf(s.out, "odoorpc %s, connected to %s (Odoo %s)\n", s.opts.Version, s.client.Server(), s.client.Version())
	fmt.Fprintln(s.out, "Type 'help' for commands, 'exit' or Ctrl+D to quit")
	fmt.Fprintln(s.out, "")

	for {
		input, err := line.Prompt(s.Prompt())
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Fprintln(s.out, "^C")
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(trimmed)

		quit, err := s.Execute(ctx, trimmed)
		if err != nil {
			s.printError(err)
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Shell) saveHistory(line *liner.State) {
	f, err := os.Create(s.opts.HistoryFile)
	if err != nil {
		s.opts.Log.Warn("cannot save history", zap.String("file", s.opts.HistoryFile), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		s.opts.Log.Warn("cannot save history", zap.String("file", s.opts.HistoryFile), zap.Error(err))
	}
}

func (s *Shell) printError(err error) {
	io.WriteString(s.out, perrors.Summary(err))
	io.WriteString(s.out, "\n")
}

// complete offers command names for the first word and cached model names
// for the second.
func (s *Shell) complete(input string) []string {
	if strings.TrimSpace(input) == "" || strings.HasSuffix(input, " ") {
		return nil
	}
	words := strings.Fields(input)
	last := words[len(words)-1]
	prefix := strings.TrimSuffix(input, last)

	var candidates []string
	switch len(words) {
	case 1:
		candidates = commandNames()
	case 2:
		if slices.Contains(modelCommands, words[0]) {
			candidates = s.env.KnownModels()
		}
		if words[0] == "env" {
			candidates = s.opts.Environments
		}
	}

	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, last) {
			matches = append(matches, prefix+c)
		}
	}
	return matches
}
