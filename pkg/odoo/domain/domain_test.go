package domain

import (
	"encoding/json"
	"reflect"
	"testing"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/literal"
)

func TestParseTerm(t *testing.T) {
	tests := []struct {
		input string
		want  Term
	}{
		{"name = mushroom", T("name", "=", "mushroom")},
		{"state != draft", T("state", "!=", "draft")},
		{"status=Running", T("status", "=", "Running")},
		{`state="in_use"`, T("state", "=", "in_use")},
		{"spam.ham in(1, 2)", T("spam.ham", "in", literal.Tuple{1, 2})},
		{"spam in(1, 2)", T("spam", "in", literal.Tuple{1, 2})},

		{"ham=2", T("ham", "=", 2)},
		{"ham!=2", T("ham", "!=", 2)},
		{"ham>2", T("ham", ">", 2)},
		{"ham>=2", T("ham", ">=", 2)},
		{"ham<2", T("ham", "<", 2)},
		{"ham<=2", T("ham", "<=", 2)},
		{"ham=- 2", T("ham", "=", -2)},
		{"ham<+ 2", T("ham", "<", 2)},

		// Empty values are empty strings
		{"ham=", T("ham", "=", "")},
		{"name =", T("name", "=", "")},
		{"name like", T("name", "like", "")},

		{"status =like Running", T("status", "=like", "Running")},
		{"status=like Running", T("status", "=like", "Running")},
		{"status =ilike Running", T("status", "=ilike", "Running")},
		{"status =? Running", T("status", "=?", "Running")},
		{"status=?Running", T("status", "=?", "Running")},
		{"status like Running", T("status", "like", "Running")},
		{"status not like Running", T("status", "not like", "Running")},
		{"status ilike Running", T("status", "ilike", "Running")},
		{"status not ilike Running", T("status", "not ilike", "Running")},
		{"status not =like Running", T("status", "not =like", "Running")},
		{"status not =ilike Running", T("status", "not =ilike", "Running")},
		{"status any Running", T("status", "any", "Running")},
		{"status not any Running", T("status", "not any", "Running")},
		{"status child_of Running", T("status", "child_of", "Running")},
		{"status parent_of Running", T("status", "parent_of", "Running")},
		{"id not in [1, 2]", T("id", "not in", []any{1, 2})},

		// Dates and hyphenated numbers stay strings
		{`create_date > "2001-12-31"`, T("create_date", ">", "2001-12-31")},
		{"create_date > 2001-12-31", T("create_date", ">", "2001-12-31")},
		{"create_date > 2001-12-31 23:59:00", T("create_date", ">", "2001-12-31 23:59:00")},
		{"port_nr != 122-2", T("port_nr", "!=", "122-2")},

		// Leading zeros are not octal
		{"code = 042", T("code", "=", "042")},
		{"code > 042", T("code", ">", "042")},
		{"code > 420", T("code", ">", 420)},
		{"code = 0o42", T("code", "=", 34)},
		{"duration = 0", T("duration", "=", 0)},
		{"price < 0.42", T("price", "<", 0.42)},

		// Integers beyond 32 bits are kept as text, floats are not
		{"phone = 41261234567", T("phone", "=", "41261234567")},
		{"elapsed = 67891234567.0", T("elapsed", "=", 67891234567.0)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTerm(tt.input)
			if err != nil {
				t.Fatalf("ParseTerm(%q) error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTerm(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTermInvalid(t *testing.T) {
	tests := []string{
		"ham==2",
		"ham == 2",
		"ham <> 2",
		"ham<>2",
		"ham =! 2",
		"ham =< 2",
		"ham => 2",
		"ham ?= 2",
		"ham on salad",
		"spam.hamin(1, 2)",
		"spam.hamin (1, 2)",
		"spamin (1, 2)",
		"[id = 1540]",
		"some_id child_off",
		"someth like3",
		"",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTerm(input)
			if err == nil {
				t.Fatalf("ParseTerm(%q) expected error", input)
			}
			if !perrors.Is(err, perrors.ErrBadTerm) && !perrors.Is(err, perrors.ErrBadOperator) {
				t.Errorf("unexpected error type: %v", err)
			}
		})
	}
}

func TestParseTermErrorNamesTerm(t *testing.T) {
	_, err := ParseTerm("ham on salad")
	if err == nil || err.Error() != `cannot parse term "ham on salad"` {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIsSearchDomain(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
	}{
		{"nil", nil, false},
		{"int", 42, false},
		{"string", "42", false},
		{"ids", []any{1, 42}, false},
		{"string ids", []any{"1", "42"}, false},
		{"tuples", []any{T("name", "=", "mushroom"), T("state", "!=", "draft")}, true},
		{"text terms", []string{"name = mushroom", "state != draft"}, true},
		{"empty", []any{}, true},
		{"bare term", "state != draft", false},
		{"operator first", []any{"|", "a = 1", "b = 2"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSearchDomain(tt.input); got != tt.want {
				t.Errorf("IsSearchDomain(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSearchArgs(t *testing.T) {
	d := []any{T("name", "=", "mushroom"), T("state", "!=", "draft")}

	tests := []struct {
		name   string
		params []any
		kw     map[string]any
		want   []any
	}{
		{"empty", nil, nil, []any{[]any{}}},
		{"empty domain", []any{[]any{}}, nil, []any{[]any{}}},
		{"structured", []any{d}, nil, []any{d}},
		{"false", []any{false}, nil, []any{false}},
		{"true", []any{true}, nil, []any{true}},
		{"text", []any{[]string{"name = mushroom", "state != draft"}}, nil, []any{d}},
		{"operators kept", []any{[]any{"|", "a = 1", "b = 2"}}, nil,
			[]any{[]any{"|", T("a", "=", 1), T("b", "=", 2)}}},
		{"bare string", []any{"state != draft"}, nil, []any{"state != draft"}},
		{"limit", []any{[]any{}}, map[string]any{"limit": 5}, []any{[]any{}, 0, 5, nil}},
		{"order", []any{[]any{}}, map[string]any{"order": "name"}, []any{[]any{}, 0, nil, "name"}},
		{"all falsy", []any{[]any{}}, map[string]any{"offset": 0, "limit": nil}, []any{[]any{}}},
		{"positional present", []any{[]any{}, 10}, map[string]any{"limit": 5}, []any{[]any{}, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SearchArgs(tt.params, tt.kw)
			if err != nil {
				t.Fatalf("SearchArgs error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SearchArgs = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSearchArgsPopsKeywords(t *testing.T) {
	kw := map[string]any{"limit": 3, "context": map[string]any{"lang": "fr_FR"}}
	if _, err := SearchArgs([]any{[]any{}}, kw); err != nil {
		t.Fatal(err)
	}
	if _, ok := kw["limit"]; ok {
		t.Error("limit should have been removed from keywords")
	}
	if _, ok := kw["context"]; !ok {
		t.Error("context should be kept")
	}
}

func TestSearchArgsInvalidTerm(t *testing.T) {
	_, err := SearchArgs([]any{[]any{"ham == 2"}}, nil)
	if !perrors.Is(err, perrors.ErrBadOperator) {
		t.Errorf("expected bad operator error, got %v", err)
	}
}

func TestTermMarshalJSON(t *testing.T) {
	b, err := json.Marshal([]any{"|", T("id", "in", literal.Tuple{1, 2}), T("active", "=", false)})
	if err != nil {
		t.Fatal(err)
	}
	want := `["|",["id","in",[1,2]],["active","=",false]]`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}
