package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sambeau/odoorpc/pkg/odoo/domain"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/literal"
)

type command struct {
	usage string
	help  string
	min   int
	run   func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

// Commands whose first argument is a model name.
var modelCommands = []string{"fields", "search", "read", "count", "get", "call"}

func init() {
	commands = map[string]command{
		"models":  {"models [pattern]", "list the models matching pattern", 0, (*Shell).models},
		"fields":  {"fields <model> [names...]", "describe the fields of a model", 1, (*Shell).fields},
		"search":  {"search <model> [terms...]", "list the ids matching the terms", 1, (*Shell).search},
		"count":   {"count <model> [terms...]", "count the records matching the terms", 1, (*Shell).count},
		"read":    {"read <model> <ids|terms...> [fields]", "read records by id or by terms", 2, (*Shell).read},
		"get":     {"get <model> <id|xmlid|terms...>", "show the single matching record", 2, (*Shell).get},
		"call":    {"call <model> <method> <ids|-> [args...]", "call a method on records or on the model", 3, (*Shell).call},
		"login":   {"login <user> [database]", "log in as another user", 1, (*Shell).login},
		"env":     {"env [name]", "switch to a configured environment", 0, (*Shell).switchEnv},
		"context": {"context [key=value...]", "show or extend the context", 0, (*Shell).setContext},
		"help":    {"help", "show this help", 0, (*Shell).help},
	}
}

func commandNames() []string {
	names := []string{"exit", "quit"}
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one command line. It reports true when the shell should
// exit.
func (s *Shell) Execute(ctx context.Context, input string) (bool, error) {
	args, err := splitArgs(input)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	name, args := args[0], args[1:]
	if name == "exit" || name == "quit" {
		return true, nil
	}

	cmd, ok := commands[name]
	if !ok {
		err := perrors.Newf("USAGE-0005", "Method", name)
		err.Message = fmt.Sprintf("unknown command: %s", name)
		if suggestion := perrors.FindClosestMatch(name, commandNames()); suggestion != "" {
			err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
		}
		return false, err
	}
	if len(args) < cmd.min {
		return false, perrors.Newf("USAGE-0001", "Method", cmd.usage)
	}
	return false, cmd.run(s, ctx, args)
}

func (s *Shell) models(ctx context.Context, args []string) error {
	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}
	names, err := s.env.Models(ctx, pattern)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(s.out, name)
	}
	return nil
}

func (s *Shell) fields(ctx context.Context, args []string) error {
	m, err := s.env.Model(ctx, args[0])
	if err != nil {
		return err
	}
	var names []string
	if len(args) > 1 {
		names = args[1:]
	}
	fields, err := m.Fields(ctx, names, nil)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := fields[k]
		line := fmt.Sprintf("%-30s %s", k, f.Type())
		if rel := f.Relation(); rel != "" {
			line += " -> " + rel
		}
		fmt.Fprintln(s.out, strings.TrimRight(line, " "))
	}
	return nil
}

func (s *Shell) search(ctx context.Context, args []string) error {
	m, err := s.env.Model(ctx, args[0])
	if err != nil {
		return err
	}
	records, err := m.Search(ctx, domain.Strings(args[1:]...), nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, records.String())
	return nil
}

func (s *Shell) count(ctx context.Context, args []string) error {
	m, err := s.env.Model(ctx, args[0])
	if err != nil {
		return err
	}
	n, err := m.SearchCount(ctx, domain.Strings(args[1:]...))
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, n)
	return nil
}

// read classifies its arguments: integers are ids, parseable terms and
// domain operators are search terms, and the rest names the fields.
func (s *Shell) read(ctx context.Context, args []string) error {
	m, err := s.env.Model(ctx, args[0])
	if err != nil {
		return err
	}
	ids, terms, fields := classify(args[1:])
	if len(ids) == 0 && len(terms) == 0 {
		return perrors.Newf("USAGE-0001", "Method", commands["read"].usage)
	}
	if len(ids) > 0 && len(terms) > 0 {
		return perrors.Newf("USAGE-0004", "Method", "read", "Value", strings.Join(args[1:], " "))
	}

	var target any = terms
	if len(ids) > 0 {
		target = ids
	}
	var spec any
	if len(fields) > 0 {
		spec = strings.Join(fields, " ")
	}
	res, err := m.Read(ctx, target, spec, nil)
	if err != nil {
		return err
	}
	if rows, ok := res.([]any); ok {
		for _, row := range rows {
			fmt.Fprintln(s.out, format(row))
		}
		return nil
	}
	fmt.Fprintln(s.out, format(res))
	return nil
}

func classify(args []string) (ids []any, terms []any, fields []string) {
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			ids = append(ids, n)
			continue
		}
		if domain.IsOperator(a) {
			terms = append(terms, a)
			continue
		}
		if _, err := domain.ParseTerm(a); err == nil {
			terms = append(terms, a)
			continue
		}
		fields = append(fields, a)
	}
	return ids, terms, fields
}

func (s *Shell) get(ctx context.Context, args []string) error {
	m, err := s.env.Model(ctx, args[0])
	if err != nil {
		return err
	}
	var ref any
	if n, err := strconv.Atoi(args[1]); err == nil && len(args) == 2 {
		ref = n
	} else if len(args) == 2 && strings.Contains(args[1], ".") && !strings.ContainsAny(args[1], " =<>") {
		ref = args[1]
	} else {
		ref = domain.Strings(args[1:]...)
	}
	rec, found, err := m.Get(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(s.out, "None")
		return nil
	}
	fmt.Fprintln(s.out, rec.String())
	return nil
}

func (s *Shell) call(ctx context.Context, args []string) error {
	m, err := s.env.Model(ctx, args[0])
	if err != nil {
		return err
	}
	method := args[1]
	params := make([]any, 0, len(args)-3)
	for _, a := range args[3:] {
		params = append(params, value(a))
	}

	var res any
	if args[2] == "-" {
		res, err = m.Call(ctx, method, params, nil)
	} else {
		ids, perr := parseIDs(args[2])
		if perr != nil {
			return perr
		}
		records := m.Browse(ids...)
		if !strings.Contains(args[2], ",") {
			records = m.Record(ids[0])
		}
		res, err = records.Call(ctx, method, params, nil)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, format(res))
	return nil
}

func parseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, perrors.Newf("USAGE-0004", "Method", "call", "Value", s)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func (s *Shell) login(ctx context.Context, args []string) error {
	db := ""
	if len(args) > 1 {
		db = args[1]
	}
	uid, err := s.client.Login(ctx, args[0], "", db)
	if err != nil {
		return err
	}
	s.env = s.client.Env()
	fmt.Fprintf(s.out, "Logged in as %s (uid %d) on %s\n", args[0], uid, s.env.Database())
	return nil
}

func (s *Shell) switchEnv(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, s.env.String())
		return nil
	}
	name := args[0]
	if !contains(s.opts.Environments, name) || s.opts.Connect == nil {
		err := perrors.Newf("LOOKUP-0004", "Name", name)
		if suggestion := perrors.FindClosestMatch(name, s.opts.Environments); suggestion != "" {
			err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
		}
		return err
	}
	client, err := s.opts.Connect(ctx, name)
	if err != nil {
		return err
	}
	s.client = client
	s.env = client.Env()
	s.opts.Name = name
	fmt.Fprintln(s.out, s.env.String())
	return nil
}

func (s *Shell) setContext(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, format(map[string]any(s.env.Context())))
		return nil
	}
	values := s.env.Context()
	for _, a := range args {
		key, raw, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return perrors.Newf("USAGE-0004", "Method", "context", "Value", a)
		}
		values[key] = value(raw)
	}
	s.env = s.env.WithContext(values)
	fmt.Fprintln(s.out, format(map[string]any(s.env.Context())))
	return nil
}

func (s *Shell) help(ctx context.Context, args []string) error {
	fmt.Fprintln(s.out, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-42s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(s.out, "  %-42s %s\n", "exit, quit", "leave the shell")
	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, `Terms are written <field> <operator> <value>, like "name ilike Morice".`)
	return nil
}

// value evaluates a literal argument, keeping the raw text when it is not
// one.
func value(raw string) any {
	if v, err := literal.Eval(raw); err == nil {
		return v
	}
	return raw
}

func format(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// splitArgs splits a command line on spaces. Single or double quotes group
// words; a backslash escapes the next character.
func splitArgs(input string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inWord  bool
		escaped bool
	)
	for _, r := range input {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, perrors.Newf("LIT-0004", "Literal", input)
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
