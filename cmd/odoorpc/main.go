package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/sambeau/odoorpc/config"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/logging"
	"github.com/sambeau/odoorpc/pkg/odoo/odoo"
	"github.com/sambeau/odoorpc/pkg/odoo/repl"
	"github.com/sambeau/odoorpc/pkg/odoo/transport"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

const (
	defaultServer = "http://localhost:8069/xmlrpc"
	defaultDB     = "odoo"
	defaultUser   = "admin"
)

// dial returns the client option that provides the transport. Tests
// replace it with an in-memory server.
var dial = func(server string, opts transport.Options) odoo.Option {
	return odoo.WithTransportOptions(opts)
}

// interactive reports whether the password can be asked on the terminal.
var interactive = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", perrors.Summary(err))
		os.Exit(1)
	}
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// counter counts a repeatable boolean flag, like -v -v.
type counter int

func (c *counter) String() string { return strconv.Itoa(int(*c)) }

func (c *counter) Set(v string) error {
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			*c++
		}
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid verbosity %q", v)
	}
	*c = counter(n)
	return nil
}

func (c *counter) IsBoolFlag() bool { return true }

type options struct {
	configPath string
	envName    string
	list       bool
	server     string
	db         string
	user       string
	password   string
	model      string
	fields     stringList
	interact   bool
	verbose    counter
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("odoorpc", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var opts options
	flags.StringVar(&opts.configPath, "config", "", "Path to config file")
	flags.StringVar(&opts.configPath, "c", "", "Path to config file")
	flags.StringVar(&opts.envName, "env", "", "Read connection settings from the named environment")
	flags.BoolVar(&opts.list, "list", false, "List the configured environments")
	flags.BoolVar(&opts.list, "l", false, "List the configured environments")
	flags.StringVar(&opts.server, "server", "", "Full URL of the server")
	flags.StringVar(&opts.db, "db", "", "Database")
	flags.StringVar(&opts.db, "d", "", "Database")
	flags.StringVar(&opts.user, "user", "", "Username")
	flags.StringVar(&opts.user, "u", "", "Username")
	flags.StringVar(&opts.password, "password", "", "Password, or it will be asked on login")
	flags.StringVar(&opts.password, "p", "", "Password, or it will be asked on login")
	flags.StringVar(&opts.model, "model", "", "Model to query")
	flags.StringVar(&opts.model, "m", "", "Model to query")
	flags.Var(&opts.fields, "fields", "Restrict the output to a field (repeatable)")
	flags.Var(&opts.fields, "f", "Restrict the output to a field (repeatable)")
	flags.BoolVar(&opts.interact, "interact", false, "Start the shell after the query")
	flags.BoolVar(&opts.interact, "i", false, "Start the shell after the query")
	flags.Var(&opts.verbose, "v", "Trace RPC calls (repeat for wider lines)")
	showVersion := flags.Bool("version", false, "Show version")
	showHelp := flags.Bool("help", false, "Show help")
	flags.Usage = func() { printUsage(stderr) }

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showHelp {
		printUsage(stdout)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "odoorpc version %s\n", Version)
		return nil
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(opts, getenv)
	if err != nil {
		return err
	}

	if opts.list {
		for _, name := range cfg.Names() {
			conn, _ := cfg.Environment(name)
			fmt.Fprintf(stdout, "%-20s %s\n", name, conn)
		}
		return nil
	}

	conn, err := connection(cfg, opts, getenv)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Verbosity(cfg.Logging, int(opts.verbose)), stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	connect := func(ctx context.Context, conn config.Connection) (*odoo.Client, error) {
		return login(ctx, cfg, conn, int(opts.verbose), log)
	}
	client, err := connect(ctx, conn)
	if err != nil {
		return err
	}

	if opts.model != "" {
		if err := query(ctx, client.Env(), opts.model, flags.Args(), opts.fields, stdout); err != nil {
			return err
		}
		if !opts.interact {
			return nil
		}
	}

	shell := repl.New(client, stdout, repl.Options{
		Name:         conn.Name,
		Version:      Version,
		HistoryFile:  cfg.Shell.HistoryFile,
		HistorySize:  cfg.Shell.HistorySize,
		Environments: cfg.Names(),
		Log:          log,
		Connect: func(ctx context.Context, name string) (*odoo.Client, error) {
			next, err := cfg.Environment(name)
			if err != nil {
				return nil, err
			}
			return connect(ctx, next)
		},
	})
	return shell.Run(ctx)
}

// loadConfig reads the configuration file. A missing file is accepted when
// the server is given on the command line.
func loadConfig(opts options, getenv func(string) string) (*config.Config, error) {
	cfg, _, err := config.LoadWithPath(opts.configPath, getenv)
	if err == nil {
		return cfg, nil
	}
	if opts.configPath == "" && opts.envName == "" && !opts.list {
		cfg = config.Defaults()
		cfg.Shell.HistoryFile = ""
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// connection resolves the environment, then applies the command line
// overrides.
func connection(cfg *config.Config, opts options, getenv func(string) string) (config.Connection, error) {
	var conn config.Connection
	if opts.envName != "" || (opts.server == "" && cfg.Default != "") {
		c, err := cfg.Environment(opts.envName)
		if err != nil {
			return conn, perrors.Newf("LOOKUP-0004", "Name", opts.envName).WithHints(err.Error())
		}
		conn = c
	} else {
		conn = config.Connection{Server: defaultServer, Database: defaultDB, User: defaultUser}
	}
	if opts.server != "" {
		conn.Server = opts.server
	}
	if opts.db != "" {
		conn.Database = opts.db
	}
	if opts.user != "" {
		conn.User = opts.user
	}
	conn.Password = conn.Password.Override(getenv("ODOORPC_PASSWORD")).Override(opts.password)
	return conn, nil
}

// login connects to the server of conn and logs in.
func login(ctx context.Context, cfg *config.Config, conn config.Connection, verbose int, log *zap.Logger) (*odoo.Client, error) {
	topts := transport.Options{
		Timeout:     cfg.Transport.Timeout,
		Compression: cfg.Transport.Compression,
		Insecure:    cfg.Transport.Insecure,
		Verbose:     verbose,
		Logger:      log,
	}
	clientOpts := []odoo.Option{
		odoo.WithLogger(log),
		odoo.WithName(conn.Name),
		dial(conn.Server, topts),
	}
	if interactive() {
		clientOpts = append(clientOpts, odoo.WithPasswordPrompt(terminalPrompt))
	}

	client, err := odoo.New(ctx, conn.Server, clientOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := client.Login(ctx, conn.User, conn.Password.Value(), conn.Database); err != nil {
		return nil, err
	}
	return client, nil
}

func terminalPrompt(user string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	return line.PasswordPrompt(fmt.Sprintf("Password for %s: ", user))
}

// query reads the records matching terms, or the ids given, and writes
// them as CSV.
func query(ctx context.Context, env *odoo.Env, model string, terms []string, fields []string, out io.Writer) error {
	m, err := env.Model(ctx, model)
	if err != nil {
		return err
	}

	var ids []int
	if allInts(terms) {
		for _, t := range terms {
			n, _ := strconv.Atoi(t)
			ids = append(ids, n)
		}
	} else {
		d := make([]any, len(terms))
		for i, t := range terms {
			d[i] = t
		}
		found, err := m.Search(ctx, d, nil)
		if err != nil {
			return err
		}
		ids = found.IDs()
	}

	var spec any
	if len(fields) > 0 {
		spec = []string(fields)
	}
	res, err := m.Read(ctx, ids, spec, odoo.KW{"order": true})
	if err != nil {
		return err
	}
	rows, _ := res.([]any)

	columns := []string{"id"}
	for _, f := range fields {
		if f != "id" {
			columns = append(columns, f)
		}
	}
	if len(fields) == 0 && len(rows) > 0 {
		if first, ok := rows[0].(map[string]any); ok {
			var keys []string
			for k := range first {
				if k != "id" {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			columns = append(columns, keys...)
		}
	}

	w := csv.NewWriter(out)
	if err := w.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		record := make([]string, len(columns))
		for i, c := range columns {
			record[i] = cell(m[c])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func allInts(terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		if _, err := strconv.Atoi(t); err != nil {
			return false
		}
	}
	return true
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `odoorpc - Inspect data on Odoo objects

Use interactively or query a model (--model) and pass search terms or ids
as positional parameters after the options.

Usage:
  odoorpc [options] [search_term_or_id ...]

Options:
  -c, --config PATH     Path to config file (default: auto-detect)
  --env NAME            Read connection settings from the named environment
  -l, --list            List the configured environments
  --server URL          Full URL of the server (default: %s)
  -d, --db NAME         Database (default: %s)
  -u, --user NAME       Username (default: %s)
  -p, --password PASS   Password (default: $ODOORPC_PASSWORD, the config, or a prompt)
  -m, --model NAME      Model to query
  -f, --fields NAME     Restrict the output to a field (repeatable)
  -i, --interact        Start the shell after the query
  -v                    Trace RPC calls (repeat for wider lines)
  --version             Show version
  --help                Show this help

Config Resolution:
  1. --config flag
  2. ODOORPC_CONFIG environment variable
  3. ./odoorpc.yaml
  4. ~/.config/odoorpc/odoorpc.yaml

Examples:
  odoorpc --env demo
  odoorpc --env demo -m res.partner "name ilike Morice"
  odoorpc --env demo -m res.partner -f name -f email 7 42
`, defaultServer, defaultDB, defaultUser)
}
