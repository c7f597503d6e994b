package odoo

import (
	"context"
	"testing"

	"github.com/sambeau/odoorpc/pkg/odoo/odootest"
)

// newTestEnv connects to s and logs in as admin.
func newTestEnv(t *testing.T, s *odootest.Server) *Env {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, "http://odoo.test", WithTransport(s))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := c.Login(ctx, "admin", "admin", "demo"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	s.Reset()
	return c.Env()
}
