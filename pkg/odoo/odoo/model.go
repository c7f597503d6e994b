package odoo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sambeau/odoorpc/pkg/odoo/domain"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// Model is the proxy of one model in an Env. Its field metadata is loaded
// on first use and shared through the cache by every Env of the database.
type Model struct {
	env  *Env
	name string

	mu     sync.Mutex
	fields map[string]Field
	keys   []string
}

// Name returns the model name, like "res.partner".
func (m *Model) Name() string { return m.name }

// Env returns the environment of the model.
func (m *Model) Env() *Env { return m.env }

func (m *Model) String() string { return fmt.Sprintf("Model(%s)", m.name) }

func (m *Model) fieldMap(ctx context.Context) (map[string]Field, error) {
	m.mu.Lock()
	fields := m.fields
	m.mu.Unlock()
	if fields != nil {
		return fields, nil
	}

	key := m.env.key(ScopeFields)
	if v, ok := m.env.cache().Get(key, m.name); ok {
		fields = v.(map[string]Field)
	} else {
		res, err := m.env.Execute(ctx, m.name, "fields_get", nil, nil)
		if err != nil {
			return nil, err
		}
		raw, _ := res.(map[string]any)
		fields = make(map[string]Field, len(raw))
		for name, attrs := range raw {
			if a, ok := attrs.(map[string]any); ok {
				fields[name] = Field(a)
			}
		}
		v, _ := m.env.cache().LoadOrStore(key, m.name, fields)
		fields = v.(map[string]Field)
	}

	m.mu.Lock()
	m.fields = fields
	m.keys = fieldNames(fields)
	sort.Strings(m.keys)
	m.mu.Unlock()
	return fields, nil
}

// Fields returns the field metadata, restricted to names and to the
// attributes listed, when not empty.
func (m *Model) Fields(ctx context.Context, names, attributes []string) (map[string]Field, error) {
	fields, err := m.fieldMap(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 && len(attributes) == 0 {
		return fields, nil
	}
	out := make(map[string]Field)
	for name, field := range fields {
		if len(names) > 0 && !contains(names, name) {
			continue
		}
		if len(attributes) == 0 {
			out[name] = field
			continue
		}
		f := make(Field)
		for _, attr := range attributes {
			if v, ok := field[attr]; ok {
				f[attr] = v
			}
		}
		out[name] = f
	}
	return out, nil
}

// Keys returns the sorted field names.
func (m *Model) Keys(ctx context.Context) ([]string, error) {
	if _, err := m.fieldMap(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...), nil
}

// Field returns the metadata of one field.
func (m *Model) Field(ctx context.Context, name string) (Field, error) {
	fields, err := m.fieldMap(ctx)
	if err != nil {
		return nil, err
	}
	f, ok := fields[name]
	if !ok {
		return nil, perrors.NewUnknownField(m.name, name, m.keys)
	}
	return f, nil
}

// IsField reports whether name is a field of the model.
func (m *Model) IsField(ctx context.Context, name string) (bool, error) {
	fields, err := m.fieldMap(ctx)
	if err != nil {
		return false, err
	}
	_, ok := fields[name]
	return ok, nil
}

// Access reports whether the user may use the model in mode.
func (m *Model) Access(ctx context.Context, mode string) bool {
	return m.env.Access(ctx, m.name, mode)
}

// Browse returns the collection of ids, in order, duplicates kept.
func (m *Model) Browse(ids ...int) Records {
	idnames := make([]IDName, len(ids))
	for i, id := range ids {
		idnames[i] = IDName{ID: id}
	}
	return newRecords(m, idnames)
}

// Record returns the single record id. No call is made.
func (m *Model) Record(id int) Records {
	return newSingle(m, IDName{ID: id})
}

// Call executes method on the model with positional params and keywords.
func (m *Model) Call(ctx context.Context, method string, params []any, kw KW) (any, error) {
	return m.env.Execute(ctx, m.name, method, params, kw)
}

// Search returns the records matching the domain d, which is a list of
// terms or a single textual term. The "offset", "limit", "order" and
// "reverse" keywords are accepted.
func (m *Model) Search(ctx context.Context, d any, kw KW) (Records, error) {
	res, err := m.env.Execute(ctx, m.name, "search", []any{domainArg(d)}, kw)
	if err != nil {
		return Records{}, err
	}
	ids, _ := toIDs(res)
	return m.Browse(ids...), nil
}

// SearchCount returns the number of records matching d.
func (m *Model) SearchCount(ctx context.Context, d any) (int, error) {
	res, err := m.env.Execute(ctx, m.name, "search_count", []any{domainArg(d)}, nil)
	if err != nil {
		return 0, err
	}
	n, _ := toInt(res)
	return n, nil
}

func domainArg(d any) any {
	switch x := d.(type) {
	case nil:
		return []any{}
	case string:
		return []any{x}
	case domain.Term:
		return []any{x}
	}
	return d
}

// Get returns the single record identified by ref: an id, an external id
// "module.name", or a domain matching at most one record. The boolean is
// false when nothing matched.
func (m *Model) Get(ctx context.Context, ref any) (Records, bool, error) {
	switch x := ref.(type) {
	case int:
		return m.Record(x), x != 0, nil
	case string:
		rec, ok, err := m.env.Ref(ctx, x)
		if err != nil || !ok {
			return Records{}, false, err
		}
		if rec.model != m {
			return Records{}, false, perrors.Newf("LOOKUP-0002", "Got", rec.model.name, "Want", m.name)
		}
		return rec, true, nil
	}

	if !domain.IsSearchDomain(ref) {
		return Records{}, false, perrors.Newf("USAGE-0004", "Method", "get", "Value", ref)
	}
	res, err := m.env.Execute(ctx, m.name, "search", []any{ref}, nil)
	if err != nil {
		return Records{}, false, err
	}
	ids, _ := toIDs(res)
	switch len(ids) {
	case 0:
		return Records{}, false, nil
	case 1:
		return m.Record(ids[0]), true, nil
	}
	return Records{}, false, perrors.Newf("VALUE-0001", "Count", len(ids))
}

// Create creates one record from values.
func (m *Model) Create(ctx context.Context, values map[string]any) (Records, error) {
	fields, err := m.fieldMap(ctx)
	if err != nil {
		return Records{}, err
	}
	vals, err := m.unwrapValues(fields, values)
	if err != nil {
		return Records{}, err
	}
	res, err := m.env.Execute(ctx, m.name, "create", []any{vals}, nil)
	if err != nil {
		return Records{}, err
	}
	if ids, ok := res.([]any); ok && len(ids) == 1 {
		res = ids[0]
	}
	id, _ := toInt(res)
	return m.Record(id), nil
}

// CreateMany creates one record per entry of values in a single call.
func (m *Model) CreateMany(ctx context.Context, values []map[string]any) (Records, error) {
	if err := m.env.client.requireVersion("batch create", 12.0); err != nil {
		return Records{}, err
	}
	fields, err := m.fieldMap(ctx)
	if err != nil {
		return Records{}, err
	}
	list := make([]any, len(values))
	for i, v := range values {
		if list[i], err = m.unwrapValues(fields, v); err != nil {
			return Records{}, err
		}
	}
	res, err := m.env.Execute(ctx, m.name, "create", []any{list}, nil)
	if err != nil {
		return Records{}, err
	}
	ids, _ := toIDs(res)
	return m.Browse(ids...), nil
}

var (
	percentFieldRe = regexp.MustCompile(`%\((\w+)\)[-#0 +]*\d*(?:\.\d+)?[sdifr]`)
	braceFieldRe   = regexp.MustCompile(`\{(\w+)(?:![rsa])?(?::[^{}]*)?\}`)
)

// FieldSpec is the parsed field argument of a read.
type FieldSpec struct {
	Names  []string
	Format string
	Single bool
}

// ParseFieldSpec interprets the field argument of a read: nil for all
// fields, a name, a space separated list of names, a []string, or a
// format like "%(street)s %(city)s" or "{street} {city}".
func ParseFieldSpec(fields any) (FieldSpec, error) {
	switch x := fields.(type) {
	case nil:
		return FieldSpec{}, nil
	case []string:
		return FieldSpec{Names: x}, nil
	case []any:
		names := make([]string, len(x))
		for i, v := range x {
			s, ok := v.(string)
			if !ok {
				return FieldSpec{}, perrors.Newf("USAGE-0006", "Value", fields)
			}
			names[i] = s
		}
		return FieldSpec{Names: names}, nil
	case string:
		if strings.Contains(x, "%(") || braceFieldRe.MatchString(x) {
			return FieldSpec{Names: formatFields(x), Format: x}, nil
		}
		names := strings.Fields(x)
		return FieldSpec{Names: names, Single: len(names) == 1}, nil
	}
	return FieldSpec{}, perrors.Newf("USAGE-0006", "Value", fields)
}

func formatFields(format string) []string {
	var names []string
	for _, re := range []*regexp.Regexp{percentFieldRe, braceFieldRe} {
		for _, m := range re.FindAllStringSubmatch(format, -1) {
			if !contains(names, m[1]) {
				names = append(names, m[1])
			}
		}
	}
	return names
}

// Render fills the format with the values of row.
func (s FieldSpec) Render(row map[string]any) string {
	out := percentFieldRe.ReplaceAllStringFunc(s.Format, func(m string) string {
		name := percentFieldRe.FindStringSubmatch(m)[1]
		return formatValue(row[name])
	})
	return braceFieldRe.ReplaceAllStringFunc(out, func(m string) string {
		name := braceFieldRe.FindStringSubmatch(m)[1]
		return formatValue(row[name])
	})
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case []any:
		if len(x) == 2 {
			if name, ok := x[1].(string); ok {
				return name
			}
		}
	case Records:
		return x.String()
	}
	return fmt.Sprint(v)
}

// shape applies the field spec to one read row.
func (s FieldSpec) shape(row any) any {
	m, ok := row.(map[string]any)
	if !ok {
		return row
	}
	switch {
	case s.Format != "":
		return s.Render(m)
	case s.Single:
		return m[s.Names[0]]
	}
	return m
}

// Read reads fields of the records given by ids: an id, a list of ids, or
// a domain. For a single id the result is one item, otherwise a list with
// one item per record. An item is the row map, the value when fields names
// one field, or the rendered string when fields is a format. Ids that do
// not exist read as false. Relational values are returned as sent by the
// server.
func (m *Model) Read(ctx context.Context, ids any, fields any, kw KW) (any, error) {
	spec, err := ParseFieldSpec(fields)
	if err != nil {
		return nil, err
	}
	params := []any{idsOf(ids)}
	if spec.Names != nil {
		params = append(params, spec.Names)
	}
	res, err := m.env.Execute(ctx, m.name, "read", params, kw)
	if err != nil || !Truthy(res) {
		return res, err
	}
	if list, ok := res.([]any); ok {
		out := make([]any, len(list))
		for i, row := range list {
			out[i] = spec.shape(row)
		}
		return out, nil
	}
	return spec.shape(res), nil
}

// ExternalIDs returns the external ids of the model records, restricted to
// ids when given, mapped to their record.
func (m *Model) ExternalIDs(ctx context.Context, ids []int) (map[string]Records, error) {
	d := []any{domain.T("model", "=", m.name)}
	if ids != nil {
		d = append(d, domain.T("res_id", "in", anyInts(ids)))
	}
	res, err := m.env.Execute(ctx, "ir.model.data", "read", []any{d, []string{"module", "name", "res_id"}}, nil)
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]any)
	out := make(map[string]Records, len(rows))
	for _, row := range rows {
		r, ok := row.(map[string]any)
		if !ok {
			continue
		}
		id, _ := toInt(r["res_id"])
		out[fmt.Sprintf("%v.%v", r["module"], r["name"])] = m.Record(id)
	}
	return out, nil
}

// WithEnv returns the same model in env.
func (m *Model) WithEnv(env *Env) *Model {
	return env.modelUnchecked(m.name)
}

// Sudo returns the model in the superuser environment.
func (m *Model) Sudo(ctx context.Context) (*Model, error) {
	env, err := m.env.Sudo(ctx)
	if err != nil {
		return nil, err
	}
	return m.WithEnv(env), nil
}

// WithContext returns the model in an environment whose context is the
// current one updated with values.
func (m *Model) WithContext(values Context) *Model {
	c := m.env.context.clone()
	for k, v := range values {
		c[k] = v
	}
	return m.WithEnv(m.env.WithContext(c))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
