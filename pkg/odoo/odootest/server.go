// Package odootest provides an in-memory Odoo server for tests. It
// implements transport.Transport and records every request it receives.
package odootest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/sambeau/odoorpc/pkg/odoo/domain"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// Request is one call received by Server. Model, Action, Params and KW
// are set for object.execute_kw.
type Request struct {
	Service string
	Method  string
	Model   string
	Action  string
	Params  []any
	KW      map[string]any
}

// Handler answers one model method in place of the built-in tables.
type Handler func(params []any, kw map[string]any) (any, error)

// Server is an in-memory server answering execute_kw on a few tables.
// The only database is "demo".
type Server struct {
	Version  string
	Users    map[string]string // login -> password
	Fields   map[string]map[string]any
	Tables   map[string]map[int]map[string]any
	Handlers map[string]Handler // keyed "model.method"

	// ReadOrder permutes the rows returned by read.
	ReadOrder func(rows []any) []any

	Calls []Request

	mu     sync.Mutex
	nextID int
}

// NewServer returns a version 17.0 server with the users admin and demo,
// whose passwords are their logins.
func NewServer() *Server {
	s := &Server{
		Version:  "17.0",
		Users:    map[string]string{"admin": "admin", "demo": "demo"},
		Fields:   map[string]map[string]any{},
		Tables:   map[string]map[int]map[string]any{},
		nextID:   1000,
		Handlers: map[string]Handler{},
	}
	s.AddModel("res.users", map[string]any{
		"login": map[string]any{"type": "char"},
		"name":  map[string]any{"type": "char"},
	})
	s.Insert("res.users", map[string]any{"id": 2, "login": "admin", "name": "Administrator"})
	s.Insert("res.users", map[string]any{"id": 6, "login": "demo", "name": "Demo"})
	s.AddModel("ir.model.data", map[string]any{
		"module": map[string]any{"type": "char"},
		"name":   map[string]any{"type": "char"},
		"model":  map[string]any{"type": "char"},
		"res_id": map[string]any{"type": "integer"},
	})
	return s
}

// AddModel registers a model and its fields_get answer.
func (s *Server) AddModel(name string, fields map[string]any) {
	s.Fields[name] = fields
	if s.Tables[name] == nil {
		s.Tables[name] = map[int]map[string]any{}
	}
	if s.Tables["ir.model"] == nil {
		s.Tables["ir.model"] = map[int]map[string]any{}
	}
	id := len(s.Tables["ir.model"]) + 1
	s.Tables["ir.model"][id] = map[string]any{"id": id, "model": name}
}

// Insert stores row, which must hold an int "id".
func (s *Server) Insert(model string, row map[string]any) {
	id := row["id"].(int)
	s.Tables[model][id] = row
}

// Count returns the number of execute_kw calls of method on model.
func (s *Server) Count(model, method string) int {
	n := 0
	for _, c := range s.Calls {
		if c.Model == model && c.Action == method {
			n++
		}
	}
	return n
}

// Last returns the most recent request.
func (s *Server) Last() Request {
	return s.Calls[len(s.Calls)-1]
}

// Reset forgets the recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

// Call implements transport.Transport.
func (s *Server) Call(ctx context.Context, service, method string, args []any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Request{Service: service, Method: method}
	defer func() { s.Calls = append(s.Calls, c) }()

	switch service + "." + method {
	case "db.server_version":
		return s.Version, nil
	case "db.list":
		return []any{"demo"}, nil
	case "common.login":
		if args[0] != "demo" {
			return nil, &perrors.RemoteError{Name: "KeyError", Message: fmt.Sprintf("database %q does not exist", args[0])}
		}
		if pw, ok := s.Users[args[1].(string)]; ok && pw == args[2] {
			for id, row := range s.Tables["res.users"] {
				if row["login"] == args[1] {
					return id, nil
				}
			}
		}
		return false, nil
	case "object.execute_kw":
	default:
		return nil, fmt.Errorf("unexpected call %s.%s", service, method)
	}

	uid, _ := args[1].(int)
	c.Model, c.Action = args[3].(string), args[4].(string)
	c.Params, _ = args[5].([]any)
	if len(args) > 6 {
		c.KW, _ = args[6].(map[string]any)
	}
	if !s.validUID(uid, args[2]) {
		return nil, &perrors.RemoteError{Name: "AccessDenied", Message: "Access Denied"}
	}
	if h := s.Handlers[c.Model+"."+c.Action]; h != nil {
		return h(c.Params, c.KW)
	}
	return s.execute(c.Model, c.Action, c.Params, c.KW)
}

func (s *Server) validUID(uid int, password any) bool {
	row, ok := s.Tables["res.users"][uid]
	if !ok {
		return false
	}
	return s.Users[row["login"].(string)] == password
}

func (s *Server) execute(model, method string, params []any, kw map[string]any) (any, error) {
	table, ok := s.Tables[model]
	if !ok && model != "ir.model.access" {
		return nil, &perrors.RemoteError{Name: "KeyError", Message: model}
	}
	switch method {
	case "check":
		return true, nil
	case "context_get":
		return map[string]any{"lang": "fr_BE", "tz": "Europe/Brussels"}, nil
	case "fields_get":
		return s.Fields[model], nil
	case "read":
		return s.read(table, ints(params[0]), params[1:]), nil

	case "search":
		return anyInts(s.search(table, params[0].([]any))), nil
	case "search_count":
		return len(s.search(table, params[0].([]any))), nil
	case "search_read":
		ids := s.search(table, params[0].([]any))
		var fields []any
		if f, ok := kw["fields"]; ok {
			fields = []any{f}
		}
		return s.read(table, ids, fields), nil
	case "create":
		s.nextID++
		row := map[string]any{"id": s.nextID}
		for k, v := range params[0].(map[string]any) {
			row[k] = v
		}
		table[s.nextID] = row
		return s.nextID, nil
	case "write":
		for _, id := range ints(params[0]) {
			for k, v := range params[1].(map[string]any) {
				table[id][k] = v
			}
		}
		return true, nil
	case "unlink":
		for _, id := range ints(params[0]) {
			delete(table, id)
		}
		return true, nil
	case "exists":
		var out []any
		for _, id := range ints(params[0]) {
			if _, ok := table[id]; ok {
				out = append(out, id)
			}
		}
		return out, nil
	case "name_get":
		var out []any
		for _, id := range ints(params[0]) {
			out = append(out, []any{id, table[id]["name"]})
		}
		return out, nil
	}
	return nil, &perrors.RemoteError{Name: "AttributeError", Message: fmt.Sprintf("type object %q has no attribute %q", model, method)}
}

func (s *Server) read(table map[int]map[string]any, ids []int, rest []any) []any {
	var fields []string
	if len(rest) > 0 {
		fields, _ = rest[0].([]string)
	}
	rows := []any{}
	for _, id := range ids {
		row, ok := table[id]
		if !ok {
			continue
		}
		out := map[string]any{"id": id}
		for k, v := range row {
			if fields == nil || slices.Contains(fields, k) {
				out[k] = v
			}
		}
		if slices.Contains(fields, "display_name") {
			out["display_name"] = row["name"]
		}
		rows = append(rows, out)
	}
	if s.ReadOrder != nil {
		rows = s.ReadOrder(rows)
	}
	return rows
}

func (s *Server) search(table map[int]map[string]any, d []any) []int {
	ids := make([]int, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []int
	for _, id := range ids {
		if ok, _ := match(table[id], d); ok {
			out = append(out, id)
		}
	}
	return out
}

// match evaluates a prefix-notation domain on row. It returns the rest of
// the domain after the expression it consumed.
func match(row map[string]any, d []any) (bool, []any) {
	if len(d) == 0 {
		return true, nil
	}
	ok, rest := matchOne(row, d)
	for len(rest) > 0 {
		var next bool
		next, rest = matchOne(row, rest)
		ok = ok && next
	}
	return ok, nil
}

func matchOne(row map[string]any, d []any) (bool, []any) {
	switch x := d[0].(type) {
	case string:
		switch x {
		case domain.Not:
			ok, rest := matchOne(row, d[1:])
			return !ok, rest
		case domain.Or, domain.And:
			a, rest := matchOne(row, d[1:])
			b, rest := matchOne(row, rest)
			if x == domain.Or {
				return a || b, rest
			}
			return a && b, rest
		}
	case domain.Term:
		return matchTerm(row, x), d[1:]
	}
	return false, d[1:]
}

func matchTerm(row map[string]any, t domain.Term) bool {
	v := row[t.Field]
	if t.Field == "id" {
		v = row["id"]
	}
	switch t.Operator {
	case "=":
		return fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "!=":
		return fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "like", "ilike":
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(t.Value)))
	case "in", "not in":
		found := false
		for _, item := range t.Value.([]any) {
			if fmt.Sprint(item) == fmt.Sprint(v) {
				found = true
			}
		}
		return found == (t.Operator == "in")
	}
	return false
}

func ints(v any) []int {
	switch x := v.(type) {
	case []int:
		return x
	case int:
		return []int{x}
	case []any:
		out := make([]int, 0, len(x))
		for _, item := range x {
			if n, ok := item.(int); ok {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

func anyInts(ids []int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// PartnerServer serves res.partner with a self referencing parent_id and
// a category_ids many2many. Partner 42 is archived.
func PartnerServer() *Server {
	s := NewServer()
	s.AddModel("res.partner", map[string]any{
		"name":         map[string]any{"type": "char"},
		"active":       map[string]any{"type": "boolean"},
		"parent_id":    map[string]any{"type": "many2one", "relation": "res.partner"},
		"category_ids": map[string]any{"type": "many2many", "relation": "res.partner.category"},
		"ref_id":       map[string]any{"type": "reference"},
	})
	s.AddModel("res.partner.category", map[string]any{
		"name": map[string]any{"type": "char"},
	})
	for _, row := range []map[string]any{
		{"id": 4, "name": "Four", "active": true, "parent_id": false, "category_ids": []any{}},
		{"id": 17, "name": "Seventeen", "active": true, "parent_id": []any{4, "Four"}, "category_ids": []any{1, 2}},
		{"id": 42, "name": "Forty-two", "active": false, "parent_id": []any{17, "Seventeen"}, "category_ids": []any{2}},
	} {
		s.Insert("res.partner", row)
	}
	s.Insert("res.partner.category", map[string]any{"id": 1, "name": "Gold"})
	s.Insert("res.partner.category", map[string]any{"id": 2, "name": "Silver"})
	return s
}
