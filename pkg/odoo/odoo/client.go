// Package odoo is a client for the Odoo object model. A Client owns the
// connection to one server. Each Env is a (database, user, context) view on
// that server, through which models are looked up and records are read,
// written and combined.
package odoo

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/transport"
)

// SuperuserID is the uid of the administrator.
const SuperuserID = 1

// PasswordPrompt asks for the password of user.
type PasswordPrompt func(user string) (string, error)

// Client is the connection to one server.
type Client struct {
	server    string
	protocol  string
	transport transport.Transport
	cache     *Cache
	log       *zap.Logger
	name      string

	version     string
	versionInfo float64

	mu     sync.Mutex
	env    *Env
	prompt PasswordPrompt
}

// Option configures a Client.
type Option func(*Client) error

// WithTransport sets the transport instead of building one from the URL.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) error {
		c.transport = t
		return nil
	}
}

// WithTransportOptions builds the transport from the URL with opts.
func WithTransportOptions(opts transport.Options) Option {
	return func(c *Client) error {
		if opts.Logger == nil {
			opts.Logger = c.log
		}
		t, protocol, err := transport.New(c.server, opts)
		if err != nil {
			return err
		}
		c.transport, c.protocol = t, protocol
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}

// WithCache shares a cache between clients.
func WithCache(cache *Cache) Option {
	return func(c *Client) error {
		c.cache = cache
		return nil
	}
}

// WithPasswordPrompt sets the function asked for missing passwords.
func WithPasswordPrompt(p PasswordPrompt) Option {
	return func(c *Client) error {
		c.prompt = p
		return nil
	}
}

// WithName names the client environment, usually after a section of the
// configuration file.
func WithName(name string) Option {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

var versionPattern = regexp.MustCompile(`\d+\.?\d*`)

// New connects to server and reads its version. Servers older than 6.1 are
// not supported.
func New(ctx context.Context, server string, opts ...Option) (*Client, error) {
	c := &Client{
		server: server,
		cache:  NewCache(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.transport == nil {
		if err := WithTransportOptions(transport.Options{})(c); err != nil {
			return nil, err
		}
	}

	v, err := c.transport.Call(ctx, "db", "server_version", nil)
	if err != nil {
		return nil, fmt.Errorf("reading server version: %w", err)
	}
	c.version = fmt.Sprint(v)
	major := versionPattern.FindString(c.version)
	c.versionInfo, _ = strconv.ParseFloat(major, 64)
	if c.versionInfo <= 6.0 {
		return nil, perrors.Newf("UNSUP-0001", "Feature", "odoorpc", "Min", "6.1", "Version", c.version)
	}

	c.env = newEnv(c, "")
	c.log.Debug("connected",
		zap.String("server", server),
		zap.String("protocol", c.protocol),
		zap.String("version", c.version))
	return c, nil
}

// Server returns the server URL.
func (c *Client) Server() string { return c.server }

// Protocol returns the wire protocol when the transport was built from
// the URL.
func (c *Client) Protocol() string { return c.protocol }

// Version returns the server version string, like "17.0".
func (c *Client) Version() string { return c.version }

// VersionInfo returns the major server version as a number.
func (c *Client) VersionInfo() float64 { return c.versionInfo }

// Cache returns the shared cache.
func (c *Client) Cache() *Cache { return c.cache }

// Env returns the active environment.
func (c *Client) Env() *Env {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.env
}

// SetPasswordPrompt sets the function asked for missing passwords.
func (c *Client) SetPasswordPrompt(p PasswordPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = p
}

func (c *Client) passwordPrompt() PasswordPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// Call invokes a service method directly, like db.list or common.version.
func (c *Client) Call(ctx context.Context, service, method string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	return c.transport.Call(ctx, service, method, args)
}

// Databases lists the databases of the server.
func (c *Client) Databases(ctx context.Context) ([]string, error) {
	res, err := c.Call(ctx, "db", "list")
	if err != nil {
		return nil, err
	}
	items, _ := res.([]any)
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, fmt.Sprint(item))
	}
	return names, nil
}

// Login switches to user, and to database when not empty. An empty
// password is read from the credential cache or asked through the
// password prompt. The new environment adopts the user's context.
func (c *Client) Login(ctx context.Context, user, password, database string) (int, error) {
	env := c.Env()
	if database != "" {
		// db.list may be disabled on the server; skip the check then.
		if dbs, err := c.Databases(ctx); err == nil && !slices.Contains(dbs, database) {
			return 0, perrors.Newf("AUTH-0002", "Database", database).
				WithHints(fmt.Sprintf("available: %v", dbs))
		}
		if env.db != database {
			env = newEnv(c, database)
		}
	} else if env.db == "" {
		return 0, perrors.Newf("USAGE-0003")
	}

	userEnv, err := env.WithUser(ctx, user, password)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.env = userEnv
	c.mu.Unlock()
	c.log.Info("logged in",
		zap.String("database", userEnv.db),
		zap.String("user", userEnv.login),
		zap.Int("uid", userEnv.uid))
	return userEnv.uid, nil
}

func (c *Client) requireVersion(feature string, min float64) error {
	if c.versionInfo < min {
		return perrors.Newf("UNSUP-0001", "Feature", feature, "Min", fmt.Sprintf("%.1f", min), "Version", c.version)
	}
	return nil
}
