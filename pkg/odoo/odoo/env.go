package odoo

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/sambeau/odoorpc/pkg/odoo/domain"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// Env is one (database, user, context) view on a server. Envs are
// immutable; WithUser and WithContext return other, memoized, instances.
type Env struct {
	client   *Client
	db       string
	uid      int
	login    string
	password string
	context  Context

	mu     sync.Mutex
	models map[string]*Model
}

func newEnv(c *Client, db string) *Env {
	return &Env{
		client:  c,
		db:      db,
		context: Context{},
		models:  make(map[string]*Model),
	}
}

func (e *Env) key(scope Scope) CacheKey {
	return CacheKey{Scope: scope, Database: e.db, Server: e.client.server}
}

func (e *Env) cache() *Cache { return e.client.cache }

func (e *Env) log() *zap.Logger { return e.client.log }

// Client returns the owning client.
func (e *Env) Client() *Client { return e.client }

// Database returns the database name, empty before login.
func (e *Env) Database() string { return e.db }

// UID returns the user id, 0 before login.
func (e *Env) UID() int { return e.uid }

// Login returns the user login when known.
func (e *Env) Login() string { return e.login }

// Name returns the configured environment name, or the database.
func (e *Env) Name() string {
	if e.client.name != "" {
		return e.client.name
	}
	return e.db
}

// Context returns a copy of the context.
func (e *Env) Context() Context { return e.context.clone() }

// Lang returns the language code of the context, like "fr_BE".
func (e *Env) Lang() string {
	s, _ := e.context["lang"].(string)
	return s
}

// Language parses the context language as a BCP 47 tag.
func (e *Env) Language() (language.Tag, error) {
	lang := e.Lang()
	if lang == "" {
		return language.Und, nil
	}
	return language.Parse(strings.ReplaceAll(lang, "_", "-"))
}

// User returns the current user record.
func (e *Env) User() Records {
	rec := e.modelUnchecked("res.users").Record(e.uid)
	if e.login != "" {
		rec.cache.set(map[string]any{"login": e.login}, false)
	}
	return rec
}

func (e *Env) String() string {
	return fmt.Sprintf("Env(%s@%s)", e.login, e.db)
}

// Execute calls method on model through object.execute_kw.
//
// For read, the first parameter is an id, a list of ids or a search
// domain. Ids are deduplicated and sorted before the call; with the "order"
// keyword set to true the rows are returned in the order of the given ids,
// with false for ids that do not exist. A domain is resolved with
// search_read when the server supports it. For search, the "offset",
// "limit" and "order" keywords become positional and "reverse" reverses the
// result. search_count accepts no keywords.
//
// The context of the environment is added to the keyword arguments when it
// is not empty.
func (e *Env) Execute(ctx context.Context, model, method string, params []any, kw KW) (any, error) {
	if e.uid == 0 {
		return nil, perrors.Newf("USAGE-0003")
	}
	if method == "browse" {
		return nil, perrors.Newf("USAGE-0005", "Method", method)
	}
	kw = kw.clone()

	var (
		ids     []int
		ordered []int
		single  bool
		reverse bool
		err     error
	)

	switch method {
	case "read":
		if len(params) == 0 {
			return nil, perrors.Newf("USAGE-0001", "Method", "read")
		}
		first := params[0]
		switch {
		case !isList(first):
			id, ok := toInt(first)
			if !ok {
				return nil, perrors.Newf("USAGE-0004", "Method", "read", "Value", first)
			}
			if id == 0 {
				return false, nil
			}
			single, ids = true, []int{id}

		case isNonEmptyDomain(first):
			var res any
			var done bool
			ids, ordered, res, done, err = e.searchForRead(ctx, model, params, kw)
			if err != nil || done {
				return res, err
			}

		default:
			list, ok := toIDs(idsOf(first))
			if !ok {
				return nil, perrors.Newf("USAGE-0004", "Method", "read", "Value", first)
			}
			preserve := Truthy(kw["order"])
			delete(kw, "order")
			ids = uniqueSorted(list)
			if preserve {
				ordered = list
				if len(ids) == 0 {
					return reorder([]any{}, list), nil
				}
			}
		}
		if len(ids) == 0 {
			return []any{}, nil
		}
		params = append([]any{ids}, params[1:]...)

	case "search":
		reverse = Truthy(kw["reverse"])
		delete(kw, "reverse")
		if params, err = domain.SearchArgs(params, kw); err != nil {
			return nil, err
		}

	case "search_count":
		for _, name := range []string{"offset", "limit", "order", "reverse"} {
			if _, ok := kw[name]; ok {
				return nil, perrors.Newf("USAGE-0002", "Method", "search_count", "Key", name)
			}
		}
		if len(params) > 1 {
			params = params[:1]
		}
		if params, err = domain.SearchArgs(params, nil); err != nil {
			return nil, err
		}
	}

	if params == nil {
		params = []any{}
	}
	res, err := e.executeKW(ctx, model, method, params, e.withContext(kw))
	if err != nil {
		return nil, err
	}

	if ordered != nil {
		res = reorder(res, ordered)
	}
	if reverse {
		if list, ok := res.([]any); ok {
			slices.Reverse(list)
		}
	}
	if single {
		if list, ok := res.([]any); ok {
			if len(list) == 0 {
				return false, nil
			}
			return list[0], nil
		}
	}
	return res, nil
}

// searchForRead resolves the domain of a read. With search_read the rows
// are returned directly (done is true). Otherwise the matching ids are
// returned for a following read, in server order when an order was asked.
func (e *Env) searchForRead(ctx context.Context, model string, params []any, kw KW) (ids, ordered []int, res any, done bool, err error) {
	sp, err := domain.SearchArgs(params[:1], kw)
	if err != nil {
		return nil, nil, nil, true, err
	}

	if e.client.versionInfo >= 8.0 {
		skw := kw.clone()
		if len(params) > 1 && params[1] != nil {
			skw["fields"] = params[1]
		}
		if len(sp) == 4 {
			if Truthy(sp[1]) {
				skw["offset"] = sp[1]
			}
			if sp[2] != nil {
				skw["limit"] = sp[2]
			}
			if Truthy(sp[3]) {
				skw["order"] = sp[3]
			}
		}
		res, err = e.executeKW(ctx, model, "search_read", sp[:1], e.withContext(skw))
		return nil, nil, res, true, err
	}

	found, err := e.executeKW(ctx, model, "search", sp, e.withContext(nil))
	if err != nil {
		return nil, nil, nil, true, err
	}
	ids, _ = toIDs(found)
	if len(ids) == 0 {
		return nil, nil, []any{}, true, nil
	}
	if len(sp) == 4 && Truthy(sp[3]) {
		ordered = ids
	}
	return ids, ordered, nil, false, nil
}

func (e *Env) withContext(kw KW) KW {
	if len(e.context) > 0 {
		out := kw.clone()
		out["context"] = map[string]any(e.context)
		return out
	}
	if len(kw) > 0 {
		return kw
	}
	return nil
}

func (e *Env) executeKW(ctx context.Context, model, method string, params []any, kw KW) (any, error) {
	args := []any{e.db, e.uid, e.password, model, method, params}
	if kw != nil {
		args = append(args, map[string]any(kw))
	}
	return e.client.transport.Call(ctx, "object", "execute_kw", args)
}

// reorder reassembles read rows in the order of ids, with false for ids
// missing from the response.
func reorder(res any, ids []int) any {
	rows, ok := res.([]any)
	if !ok {
		return res
	}
	byID := make(map[int]any, len(rows))
	for _, row := range rows {
		if m, ok := row.(map[string]any); ok {
			if id, ok := toInt(m["id"]); ok {
				byID[id] = m
			}
		}
	}
	out := make([]any, len(ids))
	for i, id := range ids {
		if row, ok := byID[id]; ok {
			out[i] = row
		} else {
			out[i] = false
		}
	}
	return out
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []int, []string, []domain.Term, Records:
		return true
	}
	return false
}

func isNonEmptyDomain(v any) bool {
	if !domain.IsSearchDomain(v) {
		return false
	}
	switch d := v.(type) {
	case []any:
		return len(d) > 0
	case []string:
		return len(d) > 0
	case []domain.Term:
		return len(d) > 0
	}
	return false
}

func idsOf(v any) any {
	if r, ok := v.(Records); ok {
		return r.IDs()
	}
	return v
}

// Access reports whether the user may use model in mode (read, write,
// create or unlink).
func (e *Env) Access(ctx context.Context, model, mode string) bool {
	if mode == "" {
		mode = "read"
	}
	_, err := e.Execute(ctx, "ir.model.access", "check", []any{model, mode}, nil)
	return err == nil
}

// Model returns the proxy for the model name. Names already known are
// trusted; others are checked against ir.model, and a miss reports the
// models matching name.
func (e *Env) Model(ctx context.Context, name string) (*Model, error) {
	if _, ok := e.cache().Get(e.key(ScopeModels), name); ok {
		return e.modelUnchecked(name), nil
	}
	names, err := e.Models(ctx, name)
	if err != nil {
		return nil, err
	}
	if slices.Contains(names, name) {
		return e.modelUnchecked(name), nil
	}
	return nil, perrors.NewModelNotFound(name, names)
}

// MustModel is like Model but panics on error.
func (e *Env) MustModel(ctx context.Context, name string) *Model {
	m, err := e.Model(ctx, name)
	if err != nil {
		panic(err)
	}
	return m
}

func (e *Env) modelUnchecked(name string) *Model {
	e.cache().LoadOrStore(e.key(ScopeModels), name, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.models[name]
	if !ok {
		m = &Model{env: e, name: name}
		e.models[name] = m
	}
	return m
}

// Models returns the sorted names of the models matching pattern.
func (e *Env) Models(ctx context.Context, pattern string) ([]string, error) {
	d := []any{domain.T("model", "like", pattern)}
	res, err := e.Execute(ctx, "ir.model", "read", []any{d, []string{"model"}}, nil)
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]any)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if m, ok := row.(map[string]any); ok {
			if name, ok := m["model"].(string); ok {
				names = append(names, name)
				e.cache().LoadOrStore(e.key(ScopeModels), name, true)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// KnownModels returns the model names cached so far.
func (e *Env) KnownModels() []string {
	return e.cache().Names(e.key(ScopeModels))
}

// Contains reports whether the model exists.
func (e *Env) Contains(ctx context.Context, name string) (bool, error) {
	if _, ok := e.cache().Get(e.key(ScopeModels), name); ok {
		return true, nil
	}
	names, err := e.Models(ctx, name)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// Ref returns the record of an external id written module.name. The
// boolean is false when no such external id exists.
func (e *Env) Ref(ctx context.Context, xmlid string) (Records, bool, error) {
	module, name, ok := strings.Cut(xmlid, ".")
	if !ok || module == "" || name == "" || strings.Contains(name, ".") {
		return Records{}, false, perrors.Newf("LOOKUP-0003", "XMLID", xmlid)
	}
	d := []any{domain.T("module", "=", module), domain.T("name", "=", name)}
	res, err := e.Execute(ctx, "ir.model.data", "read", []any{d, []string{"model", "res_id"}}, nil)
	if err != nil {
		return Records{}, false, err
	}
	rows, _ := res.([]any)
	if len(rows) == 0 {
		return Records{}, false, nil
	}
	row, _ := rows[0].(map[string]any)
	modelName, _ := row["model"].(string)
	id, _ := toInt(row["res_id"])
	m, err := e.Model(ctx, modelName)
	if err != nil {
		return Records{}, false, err
	}
	return m.Record(id), true, nil
}

// Modules returns the module names matching pattern grouped by state.
// installed filters on installed (true) or not installed (false) modules.
func (e *Env) Modules(ctx context.Context, pattern string, installed *bool) (map[string][]string, error) {
	d := []any{domain.T("name", "like", pattern)}
	if installed != nil {
		op := "in"
		if *installed {
			op = "not in"
		}
		d = append(d, domain.T("state", op, []any{"uninstalled", "uninstallable"}))
	}
	res, err := e.Execute(ctx, "ir.module.module", "read", []any{d, []string{"name", "state"}}, nil)
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]any)
	out := make(map[string][]string)
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		state, _ := m["state"].(string)
		name, _ := m["name"].(string)
		out[state] = append(out[state], name)
	}
	return out, nil
}

// Refresh drops the model and field caches of the database. Credentials
// are kept.
func (e *Env) Refresh() {
	e.cache().ClearDatabase(e.client.server, e.db, ScopeAuth)
	e.mu.Lock()
	e.models = make(map[string]*Model)
	e.mu.Unlock()
}

// WithContext returns the environment of the same user with context c.
func (e *Env) WithContext(c Context) *Env {
	return e.derive(e.uid, e.login, e.password, c)
}

// WithUser authenticates user and returns its environment, with the
// user's own context.
func (e *Env) WithUser(ctx context.Context, user, password string) (*Env, error) {
	return e.switchUser(ctx, user, 0, password, nil)
}

// WithUserContext is like WithUser with an explicit context.
func (e *Env) WithUserContext(ctx context.Context, user, password string, c Context) (*Env, error) {
	if c == nil {
		c = Context{}
	}
	return e.switchUser(ctx, user, 0, password, c)
}

// WithUID is like WithUser for a user id.
func (e *Env) WithUID(ctx context.Context, uid int, password string) (*Env, error) {
	return e.switchUser(ctx, "", uid, password, nil)
}

// Sudo returns the environment of the superuser.
func (e *Env) Sudo(ctx context.Context) (*Env, error) {
	return e.WithUID(ctx, SuperuserID, "")
}

func (e *Env) switchUser(ctx context.Context, login string, uid int, password string, c Context) (*Env, error) {
	uid, login, password, err := e.auth(ctx, login, uid, password)
	if err != nil {
		return nil, err
	}
	if login == "" && uid == SuperuserID {
		login = "admin"
	}
	if c != nil {
		return e.derive(uid, login, password, c), nil
	}

	ctxName := "context#" + strconv.Itoa(uid)
	if v, ok := e.cache().Get(e.key(ScopeEnvs), ctxName); ok {
		return e.derive(uid, login, password, v.(Context)), nil
	}
	base := e.derive(uid, login, password, Context{})
	res, err := base.Execute(ctx, "res.users", "context_get", []any{}, nil)
	if err != nil {
		return nil, err
	}
	userCtx := Context{}
	if m, ok := res.(map[string]any); ok {
		userCtx = Context(m)
	}
	e.cache().Set(e.key(ScopeEnvs), ctxName, userCtx.clone())
	return base.WithContext(userCtx), nil
}

// derive returns the memoized environment for (uid, context).
func (e *Env) derive(uid int, login, password string, c Context) *Env {
	name := memoKey(uid, c)
	if v, ok := e.cache().Get(e.key(ScopeEnvs), name); ok {
		return v.(*Env)
	}
	env := &Env{
		client:   e.client,
		db:       e.db,
		uid:      uid,
		login:    login,
		password: password,
		context:  c.clone(),
		models:   make(map[string]*Model),
	}
	actual, _ := e.cache().LoadOrStore(e.key(ScopeEnvs), name, env)
	return actual.(*Env)
}

func memoKey(uid int, c Context) string {
	if c == nil {
		c = Context{}
	}
	b, err := json.Marshal([]any{uid, map[string]any(c)})
	if err != nil {
		return fmt.Sprintf("[%d, %v]", uid, c)
	}
	return string(b)
}

// auth resolves the credentials of a user given by login or uid. A missing
// password is taken from the credential cache, then from res.users when
// readable, then from the password prompt. Cached credentials are checked
// with a cheap call and evicted when rejected.
func (e *Env) auth(ctx context.Context, login string, uid int, password string) (int, string, string, error) {
	if e.db == "" {
		return 0, "", "", perrors.Newf("USAGE-0003")
	}
	authKey := e.key(ScopeAuth)
	cacheName := login
	if login == "" {
		cacheName = "#" + strconv.Itoa(uid)
	}

	invalid, verified := false, false
	if password == "" {
		if v, ok := e.cache().Get(authKey, cacheName); ok {
			cred := v.(credential)
			uid, password = cred.uid, cred.password
		}
		if password == "" && e.uid != 0 && e.Access(ctx, "res.users", "write") {
			var d any = []any{domain.T("login", "=", login)}
			if login == "" {
				d = []int{uid}
			}
			res, err := e.Execute(ctx, "res.users", "read", []any{d, []string{"id", "login", "password"}}, nil)
			if err != nil {
				return 0, "", "", err
			}
			if rows, _ := res.([]any); len(rows) > 0 {
				row, _ := rows[0].(map[string]any)
				uid, _ = toInt(row["id"])
				login, _ = row["login"].(string)
				password, _ = row["password"].(string)
			} else {
				invalid = true
			}
		}
		verified = password != "" && uid != 0
		if password == "" && !invalid {
			prompt := e.client.passwordPrompt()
			if prompt == nil {
				return 0, "", "", perrors.Newf("AUTH-0003", "User", promptName(login, uid))
			}
			var err error
			if password, err = prompt(promptName(login, uid)); err != nil {
				return 0, "", "", err
			}
		}
	}

	if uid != 0 && !verified && !invalid {
		if !e.checkUID(ctx, uid, password) {
			uid, invalid = 0, true
		}
	}
	if uid == 0 && !invalid {
		res, err := e.client.transport.Call(ctx, "common", "login", []any{e.db, login, password})
		if err != nil {
			if strings.Contains(err.Error(), "does not exist") {
				return 0, "", "", perrors.Newf("AUTH-0002", "Database", e.db)
			}
			return 0, "", "", err
		}
		uid, _ = toInt(res)
	}
	if uid == 0 {
		return 0, "", "", perrors.Newf("AUTH-0001")
	}

	cred := credential{uid: uid, password: password}
	e.cache().Set(authKey, "#"+strconv.Itoa(uid), cred)
	if login != "" {
		e.cache().Set(authKey, login, cred)
	}
	e.log().Debug("authenticated", zap.String("database", e.db), zap.Int("uid", uid))
	return uid, login, password, nil
}

// checkUID reports whether (uid, password) is accepted by the server. The
// credential is evicted from the cache when it is not.
func (e *Env) checkUID(ctx context.Context, uid int, password string) bool {
	args := []any{e.db, uid, password, "ir.model", "fields_get", []any{[]any{nil}}}
	if _, err := e.client.transport.Call(ctx, "object", "execute_kw", args); err == nil {
		return true
	}
	authKey := e.key(ScopeAuth)
	for _, name := range e.cache().Names(authKey) {
		if v, ok := e.cache().Get(authKey, name); ok && v.(credential).uid == uid {
			e.cache().Delete(authKey, name)
		}
	}
	e.log().Debug("cached credentials rejected", zap.Int("uid", uid))
	return false
}

func promptName(login string, uid int) string {
	switch {
	case login != "":
		return login
	case uid == SuperuserID:
		return "admin"
	}
	return fmt.Sprintf("UID %d", uid)
}
