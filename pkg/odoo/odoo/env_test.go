package odoo

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sambeau/odoorpc/pkg/odoo/domain"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/odootest"
)

func TestNewRejectsOldServers(t *testing.T) {
	s := odootest.NewServer()
	s.Version = "6.0"
	_, err := New(context.Background(), "http://odoo.test", WithTransport(s))
	if !errors.Is(err, perrors.ErrUnsupported) {
		t.Fatalf("New() error = %v, want unsupported", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	s := odootest.NewServer()
	c, err := New(ctx, "http://odoo.test", WithTransport(s))
	if err != nil {
		t.Fatal(err)
	}
	if got := c.VersionInfo(); got != 17.0 {
		t.Errorf("VersionInfo() = %v, want 17", got)
	}

	tests := []struct {
		name     string
		user     string
		password string
		database string
		want     error
	}{
		{"unknown database", "admin", "admin", "nope", perrors.ErrDatabaseNotFound},
		{"wrong password", "admin", "secret", "demo", perrors.ErrInvalidCredentials},
		{"no prompt", "demo", "", "demo", perrors.ErrNoPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Login(ctx, tt.user, tt.password, tt.database)
			if !errors.Is(err, tt.want) {
				t.Errorf("Login() error = %v, want %v", err, tt.want)
			}
		})
	}

	uid, err := c.Login(ctx, "admin", "admin", "demo")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	env := c.Env()
	if uid != 2 || env.UID() != 2 || env.Database() != "demo" {
		t.Errorf("logged in as uid %d on %q", env.UID(), env.Database())
	}
	if env.Lang() != "fr_BE" {
		t.Errorf("Lang() = %q, want the user context", env.Lang())
	}
	tag, err := env.Language()
	if err != nil || tag.String() != "fr-BE" {
		t.Errorf("Language() = %v, %v", tag, err)
	}
}

func TestWithUserUsesCredentialCache(t *testing.T) {
	ctx := context.Background()
	s := odootest.NewServer()
	env := newTestEnv(t, s)

	demo, err := env.WithUser(ctx, "demo", "demo")
	if err != nil {
		t.Fatalf("WithUser() error: %v", err)
	}
	s.Reset()

	again, err := env.WithUser(ctx, "demo", "")
	if err != nil {
		t.Fatalf("WithUser() error: %v", err)
	}
	if again != demo {
		t.Error("WithUser() did not return the memoized environment")
	}
	if len(s.Calls) != 0 {
		t.Errorf("WithUser() made %d calls, want 0", len(s.Calls))
	}
}

func TestStaleCredentialIsEvicted(t *testing.T) {
	ctx := context.Background()
	s := odootest.NewServer()
	env := newTestEnv(t, s)

	if _, err := env.WithUID(ctx, 6, "demo"); err != nil {
		t.Fatalf("WithUID() error: %v", err)
	}
	s.Users["demo"] = "changed"

	_, err := env.WithUID(ctx, 6, "demo")
	if !errors.Is(err, perrors.ErrInvalidCredentials) {
		t.Fatalf("WithUID() error = %v, want invalid credentials", err)
	}
	if _, ok := env.cache().Get(env.key(ScopeAuth), "#6"); ok {
		t.Error("rejected credential still cached")
	}
}

func TestPasswordPrompt(t *testing.T) {
	ctx := context.Background()
	s := odootest.NewServer()
	env := newTestEnv(t, s)

	var asked []string
	env.Client().SetPasswordPrompt(func(user string) (string, error) {
		asked = append(asked, user)
		return "demo", nil
	})
	// admin may write res.users, but the fake answers no password.
	s.Handlers["res.users.search_read"] = func(params []any, kw map[string]any) (any, error) {
		return []any{map[string]any{"id": 6, "login": "demo", "password": ""}}, nil
	}

	u, err := env.WithUser(ctx, "demo", "")
	if err != nil {
		t.Fatalf("WithUser() error: %v", err)
	}
	if u.UID() != 6 || !reflect.DeepEqual(asked, []string{"demo"}) {
		t.Errorf("uid %d, prompted for %v", u.UID(), asked)
	}
}

func TestWithContextIsMemoized(t *testing.T) {
	env := newTestEnv(t, odootest.NewServer())
	a := env.WithContext(Context{"lang": "nl_BE", "active_test": false})
	b := env.WithContext(Context{"active_test": false, "lang": "nl_BE"})
	if a != b {
		t.Error("same context gave two environments")
	}
	if a == env || a.UID() != env.UID() {
		t.Error("WithContext() changed the user")
	}
}

func TestModelLookupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	env := newTestEnv(t, s)

	a, err := env.Model(ctx, "res.partner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Keys(ctx); err != nil {
		t.Fatal(err)
	}
	b, err := env.Model(ctx, "res.partner")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Model() returned two proxies")
	}
	if _, err := b.Keys(ctx); err != nil {
		t.Fatal(err)
	}
	if n := s.Count("ir.model", "search_read"); n != 1 {
		t.Errorf("ir.model searched %d times, want 1", n)
	}
	if n := s.Count("res.partner", "fields_get"); n != 1 {
		t.Errorf("fields_get called %d times, want 1", n)
	}
}

func TestModelNotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, odootest.PartnerServer())

	_, err := env.Model(ctx, "res.partne")
	if !errors.Is(err, perrors.ErrModelNotFound) {
		t.Fatalf("Model() error = %v", err)
	}
	var perr *perrors.Error
	if !errors.As(err, &perr) || !strings.Contains(strings.Join(perr.Hints, " "), "res.partner") {
		t.Errorf("Model() error does not list candidates: %#v", err)
	}

	ok, err := env.Contains(ctx, "res.partner.category")
	if err != nil || !ok {
		t.Errorf("Contains() = %v, %v", ok, err)
	}
}

func TestRefreshKeepsCredentials(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	env := newTestEnv(t, s)
	env.MustModel(ctx, "res.partner")

	env.Refresh()
	if len(env.KnownModels()) != 0 {
		t.Errorf("models still cached: %v", env.KnownModels())
	}
	if _, ok := env.cache().Get(env.key(ScopeAuth), "admin"); !ok {
		t.Error("Refresh() dropped the credentials")
	}
}

func TestExecuteUsageErrors(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	env := newTestEnv(t, s)

	tests := []struct {
		name   string
		env    *Env
		method string
		params []any
		kw     KW
		want   error
	}{
		{"not connected", newEnv(env.client, "demo"), "read", []any{1}, nil, perrors.ErrNotConnected},
		{"browse", env, "browse", []any{1}, nil, perrors.ErrReservedMethod},
		{"read without ids", env, "read", nil, nil, perrors.ErrMissingParameter},
		{"read bad id", env, "read", []any{"x"}, nil, perrors.ErrInvalidIDs},
		{"search_count limit", env, "search_count", []any{[]any{}}, KW{"limit": 2}, perrors.ErrUnexpectedKeyword},
		{"bad term", env, "search", []any{[]any{"name == x"}}, nil, perrors.ErrBadOperator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.env.Execute(ctx, "res.partner", tt.method, tt.params, tt.kw)
			if !errors.Is(err, tt.want) {
				t.Errorf("Execute() error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(s.Calls) != 0 {
		t.Errorf("usage errors made %d calls", len(s.Calls))
	}
}

func TestExecuteRead(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	env := newTestEnv(t, s)

	res, err := env.Execute(ctx, "res.partner", "read", []any{[]int{42, 0, 4, 42}, []string{"name"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Last().Params[0]; !reflect.DeepEqual(got, []int{4, 42}) {
		t.Errorf("read ids = %v, want sorted and unique", got)
	}
	if rows := res.([]any); len(rows) != 2 {
		t.Errorf("read returned %d rows", len(rows))
	}
	if ctxArg := s.Last().KW["context"]; ctxArg == nil {
		t.Error("context not sent")
	}

	res, err = env.Execute(ctx, "res.partner", "read", []any{[]int{0, 0}}, KW{"order": true})
	if err != nil || !reflect.DeepEqual(res, []any{false, false}) {
		t.Errorf("read of empty ids = %v, %v", res, err)
	}

	res, err = env.Execute(ctx, "res.partner", "read", []any{0}, nil)
	if err != nil || res != false {
		t.Errorf("read(0) = %v, %v", res, err)
	}
}

func TestExecuteReadDomain(t *testing.T) {
	ctx := context.Background()

	t.Run("search_read", func(t *testing.T) {
		s := odootest.PartnerServer()
		env := newTestEnv(t, s)
		res, err := env.Execute(ctx, "res.partner", "read", []any{[]any{"name != x"}, []string{"name"}}, KW{"limit": 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Calls) != 1 || s.Last().Action != "search_read" || s.Last().KW["limit"] != 2 {
			t.Errorf("calls = %+v", s.Calls)
		}
		if rows := res.([]any); len(rows) != 3 {
			t.Errorf("got %d rows", len(rows))
		}
	})

	t.Run("search then read", func(t *testing.T) {
		s := odootest.PartnerServer()
		s.Version = "7.0"
		env := newTestEnv(t, s)
		s.ReadOrder = func(rows []any) []any {
			out := append([]any(nil), rows...)
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
			return out
		}
		res, err := env.Execute(ctx, "res.partner", "read", []any{[]any{domain.T("active", "=", true)}, []string{"name"}}, KW{"order": "name"})
		if err != nil {
			t.Fatal(err)
		}
		if s.Count("res.partner", "search") != 1 || s.Count("res.partner", "read") != 1 {
			t.Errorf("calls = %+v", s.Calls)
		}
		rows := res.([]any)
		if len(rows) != 2 || rows[0].(map[string]any)["id"] != 4 {
			t.Errorf("rows = %v, want search order", rows)
		}
	})
}

func TestExecuteSearchCount(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	env := newTestEnv(t, s)

	res, err := env.Execute(ctx, "res.partner", "search_count", []any{[]any{"active = True"}, 1, 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != 2 {
		t.Errorf("search_count = %v, want 2", res)
	}
	if params := s.Last().Params; len(params) != 1 {
		t.Errorf("search_count sent %v, want the domain only", params)
	}
}

func TestExecuteSearchReverse(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	env := newTestEnv(t, s)

	res, err := env.Execute(ctx, "res.partner", "search", []any{[]any{}}, KW{"reverse": true, "limit": 10})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res, []any{42, 17, 4}) {
		t.Errorf("search = %v", res)
	}
	if got := s.Last().Params; len(got) != 4 || got[2] != 10 {
		t.Errorf("search params = %v, want offset, limit and order appended", got)
	}
}

func TestRef(t *testing.T) {
	ctx := context.Background()
	s := odootest.PartnerServer()
	s.Insert("ir.model.data", map[string]any{"id": 1, "module": "base", "name": "main_partner", "model": "res.partner", "res_id": 17})
	env := newTestEnv(t, s)

	rec, ok, err := env.Ref(ctx, "base.main_partner")
	if err != nil || !ok || rec.ID() != 17 || rec.Model().Name() != "res.partner" {
		t.Fatalf("Ref() = %v, %v, %v", rec, ok, err)
	}
	if _, ok, err := env.Ref(ctx, "base.missing"); ok || err != nil {
		t.Errorf("Ref(missing) = %v, %v", ok, err)
	}
	if _, _, err := env.Ref(ctx, "nodot"); !errors.Is(err, perrors.ErrInvalidExternalID) {
		t.Errorf("Ref(nodot) error = %v", err)
	}

	users := env.MustModel(ctx, "res.users")
	if _, _, err := users.Get(ctx, "base.main_partner"); !errors.Is(err, perrors.ErrModelMismatch) {
		t.Errorf("Get() error = %v, want model mismatch", err)
	}
}
