package odoo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// KW holds the keyword arguments of a remote method call.
type KW map[string]any

// Context is the session context sent with every call (lang, tz, ...).
type Context map[string]any

func (c Context) clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (kw KW) clone() KW {
	out := make(KW, len(kw))
	for k, v := range kw {
		out[k] = v
	}
	return out
}

// Field is the metadata of one field, as returned by fields_get.
type Field map[string]any

// Type returns the field type (char, many2one, ...).
func (f Field) Type() string {
	s, _ := f["type"].(string)
	return s
}

// Relation returns the target model of a relational field.
func (f Field) Relation() string {
	s, _ := f["relation"].(string)
	return s
}

// IsRelational reports whether values of the field are records.
func (f Field) IsRelational() bool {
	return f.Relation() != "" || f.Type() == "reference"
}

// Truthy reports whether v counts as true on the server side: false, nil,
// zero numbers, empty strings, empty collections and empty record sets are
// false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case []int:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case Records:
		return x.Len() > 0
	}
	return true
}

// toInt converts a decoded id to int. Falsy values give 0.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	case nil:
		return 0, true
	case bool:
		return 0, !x
	}
	return 0, false
}

// toIDs converts a list of ids in any of the accepted shapes. Falsy
// entries become 0.
func toIDs(v any) ([]int, bool) {
	switch x := v.(type) {
	case []int:
		return x, true
	case []any:
		ids := make([]int, len(x))
		for i, item := range x {
			n, ok := toInt(item)
			if !ok {
				return nil, false
			}
			ids[i] = n
		}
		return ids, true
	case Records:
		return x.IDs(), true
	}
	return nil, false
}

func anyInts(ids []int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// wrapValues replaces relational values of row by record sets, in place.
func (m *Model) wrapValues(fields map[string]Field, row map[string]any) map[string]any {
	for key, value := range row {
		row[key] = m.wrapValue(fields, key, value)
	}
	return row
}

// wrapValue converts the raw value of a relational field to a record set:
// many2one and reference values give a single record, x2many values a
// collection. False and non-relational values are returned unchanged.
func (m *Model) wrapValue(fields map[string]Field, key string, value any) any {
	if key == "id" || value == nil || value == false {
		return value
	}
	if _, ok := value.(Records); ok {
		return value
	}
	field, ok := fields[key]
	if !ok {
		return value
	}

	switch {
	case field.Type() == "reference":
		s, ok := value.(string)
		if !ok {
			return value
		}
		name, id, ok := strings.Cut(s, ",")
		n, err := strconv.Atoi(strings.TrimSpace(id))
		if !ok || err != nil {
			return value
		}
		return m.env.modelUnchecked(name).Record(n)
	case field.Relation() == "":
		return value
	}

	rel := m.env.modelUnchecked(field.Relation())
	if field.Type() == "many2one" {
		return newSingle(rel, idNameOf(value))
	}
	ids, ok := toIDs(value)
	if !ok {
		return value
	}
	return rel.Browse(ids...)
}

// idNameOf reads a many2one value: an id or an [id, name] pair.
func idNameOf(v any) IDName {
	switch x := v.(type) {
	case []any:
		if len(x) == 0 {
			return IDName{}
		}
		id, _ := toInt(x[0])
		in := IDName{ID: id}
		if len(x) > 1 {
			in.Name, _ = x[1].(string)
		}
		return in
	case IDName:
		return x
	}
	id, _ := toInt(v)
	return IDName{ID: id}
}

// replaceAll is the x2many command replacing the whole relation by ids.
func replaceAll(ids []int) []any {
	return []any{[]any{6, 0, anyInts(ids)}}
}

// unwrapValues converts record sets in values to their wire form before a
// create or write: ids for many2one, "model,id" for references and a
// replace-all command for x2many fields.
func (m *Model) unwrapValues(fields map[string]Field, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for key, value := range values {
		field, ok := fields[key]
		if !ok {
			return nil, perrors.NewUnknownField(m.name, key, fieldNames(fields))
		}
		typ := field.Type()
		x2many := typ == "one2many" || typ == "many2many"

		if rec, ok := value.(Records); ok {
			switch {
			case x2many:
				value = rec.IDs()
			case typ == "reference":
				if rec.Len() == 0 {
					value = false
				} else {
					value = fmt.Sprintf("%s,%d", rec.model.name, rec.IDs()[0])
				}
			case rec.single:
				value = rec.ID()
				if rec.ID() == 0 {
					value = false
				}
			default:
				value = rec.IDs()
			}
		}

		if x2many {
			if !Truthy(value) {
				value = replaceAll([]int{})
			} else if ids, ok := plainIDs(value); ok {
				value = replaceAll(ids)
			}
		}
		out[key] = value
	}
	return out, nil
}

// plainIDs returns ids when v is a list of integers rather than a list of
// x2many commands.
func plainIDs(v any) ([]int, bool) {
	switch x := v.(type) {
	case []int:
		return x, true
	case []any:
		if len(x) == 0 {
			return nil, false
		}
		if _, ok := x[0].(int); !ok {
			return nil, false
		}
		return toIDs(x)
	}
	return nil, false
}

func fieldNames(fields map[string]Field) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	return names
}

// ParseTime parses a date or datetime value read from the server. Server
// datetimes are UTC; the result is converted to the time zone named by the
// "tz" key of the environment context, when set.
func ParseTime(env *Env, value any) (time.Time, error) {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("not a date: %v", value)
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	if env != nil {
		if tz, _ := env.context["tz"].(string); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return time.Time{}, fmt.Errorf("unknown time zone %q: %w", tz, err)
			}
			t = t.In(loc)
		}
	}
	return t, nil
}
