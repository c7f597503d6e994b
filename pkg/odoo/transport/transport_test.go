package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

type pair []any

func (p pair) Elements() []any { return p }

func TestNewSelectsProtocol(t *testing.T) {
	tests := []struct {
		server   string
		protocol string
		url      string
	}{
		{"http://localhost:8069", ProtocolXMLRPC, "http://localhost:8069/xmlrpc"},
		{"http://localhost:8069/", ProtocolXMLRPC, "http://localhost:8069/xmlrpc"},
		{"https://erp.example.com/xmlrpc", ProtocolXMLRPC, "https://erp.example.com/xmlrpc"},
		{"http://localhost:8069/jsonrpc", ProtocolJSONRPC, "http://localhost:8069/jsonrpc"},
		{"http://localhost:8069/web", ProtocolWeb, "http://localhost:8069"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			tr, protocol, err := New(tt.server, Options{})
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.server, err)
			}
			if protocol != tt.protocol {
				t.Errorf("protocol = %q, want %q", protocol, tt.protocol)
			}
			var got string
			switch x := tr.(type) {
			case *XMLRPC:
				got = x.URL
			case *JSONRPC:
				got = x.URL
			case *Web:
				got = x.BaseURL
				if x.Client.Jar == nil {
					t.Error("web transport needs a cookie jar")
				}
			}
			if got != tt.url {
				t.Errorf("url = %q, want %q", got, tt.url)
			}
		})
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, _, err := New("ftp://example.com", Options{}); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestJSONRPCCall(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":"x","result":[{"id":7,"name":"Morice","rate":1.5}]}`)
	}))
	defer srv.Close()

	tr, _, err := New(srv.URL+"/jsonrpc", Options{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := tr.Call(context.Background(), "object", "execute_kw",
		[]any{"db", 2, "pw", "res.partner", "search_read", []any{[]any{pair{"name", "=", "Morice"}}}})
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}

	want := []any{map[string]any{"id": 7, "name": "Morice", "rate": 1.5}}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("result = %#v, want %#v", res, want)
	}

	if received["method"] != "call" || received["jsonrpc"] != "2.0" {
		t.Errorf("unexpected envelope: %v", received)
	}
	params := received["params"].(map[string]any)
	if params["service"] != "object" || params["method"] != "execute_kw" {
		t.Errorf("unexpected params: %v", params)
	}
	args := params["args"].([]any)
	domain := args[5].([]any)[0].([]any)[0].([]any)
	if !reflect.DeepEqual(domain, []any{"name", "=", "Morice"}) {
		t.Errorf("sequence not encoded as array: %#v", domain)
	}
}

func TestJSONRPCFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"jsonrpc":"2.0","id":"x","error":{"code":200,"message":"Odoo Server Error",
			"data":{"name":"odoo.exceptions.AccessError","arguments":["Not allowed"],"debug":"tb","exception_type":"access_error"}}}`)
	}))
	defer srv.Close()

	tr := &JSONRPC{URL: srv.URL, Client: srv.Client()}
	_, err := tr.Call(context.Background(), "object", "execute_kw", nil)
	var re *perrors.RemoteError
	if !perrors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Error() != "odoo.exceptions.AccessError: Not allowed" {
		t.Errorf("unexpected error: %q", re.Error())
	}
	if re.Code != 200 {
		t.Errorf("code = %#v, want 200", re.Code)
	}
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	tr := &JSONRPC{URL: srv.URL, Client: srv.Client()}
	if _, err := tr.Call(context.Background(), "db", "list", nil); err == nil {
		t.Error("expected error for 404")
	}
}

const xmlResponse = `<?xml version="1.0"?>
<methodResponse>
<params>
<param>
<value><array><data>
<value><struct>
<member><name>id</name><value><int>17</int></value></member>
<member><name>name</name><value><string>Spam &amp; Ham</string></value></member>
<member><name>active</name><value><boolean>1</boolean></value></member>
<member><name>parent_id</name><value><boolean>0</boolean></value></member>
<member><name>credit</name><value><double>12.5</double></value></member>
<member><name>ref</name><value>untyped</value></member>
<member><name>note</name><value><nil/></value></member>
</struct></value>
</data></array></value>
</param>
</params>
</methodResponse>`

func TestXMLRPCCall(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		path, body = r.URL.Path, string(b)
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, xmlResponse)
	}))
	defer srv.Close()

	tr, protocol, err := New(srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if protocol != ProtocolXMLRPC {
		t.Fatalf("protocol = %q", protocol)
	}
	res, err := tr.Call(context.Background(), "object", "execute_kw", []any{
		"db", 2, "pw", "res.partner", "read", []any{[]int{17}},
		map[string]any{"fields": []string{"name"}, "context": nil},
	})
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}

	if path != "/xmlrpc/object" {
		t.Errorf("path = %q", path)
	}
	for _, want := range []string{
		"<methodName>execute_kw</methodName>",
		"<int>17</int>",
		"<name>context</name>",
		"<nil/>",
		"<string>res.partner</string>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q", want)
		}
	}

	want := []any{map[string]any{
		"id": 17, "name": "Spam & Ham", "active": true, "parent_id": false,
		"credit": 12.5, "ref": "untyped", "note": nil,
	}}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("result = %#v, want %#v", res, want)
	}
}

func TestXMLRPCFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<?xml version="1.0"?>
<methodResponse><fault><value><struct>
<member><name>faultCode</name><value><string>Invalid field</string></value></member>
<member><name>faultString</name><value><string>Traceback
odoo.exceptions.ValidationError: Invalid field</string></value></member>
</struct></value></fault></methodResponse>`)
	}))
	defer srv.Close()

	tr := &XMLRPC{URL: srv.URL, Client: srv.Client()}
	_, err := tr.Call(context.Background(), "object", "execute_kw", nil)
	var re *perrors.RemoteError
	if !perrors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Name != "odoo.exceptions.ValidationError" || re.Message != "Invalid field" {
		t.Errorf("unexpected fault: %+v", re)
	}
}

func TestXMLRPCRejectsLargeInt(t *testing.T) {
	if _, err := encodeCall("x", []any{1 << 40}); err == nil {
		t.Error("expected overflow error")
	}
}

func TestWebSession(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/web/session/authenticate", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc", Path: "/"})
		io.WriteString(w, `{"jsonrpc":"2.0","result":{"uid":2,"db":"demo"}}`)
	})
	mux.HandleFunc("/web/dataset/call_kw/res.partner/search", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if c, err := r.Cookie("session_id"); err != nil || c.Value != "abc" {
			io.WriteString(w, `{"jsonrpc":"2.0","error":{"message":"Session expired"}}`)
			return
		}
		var req struct {
			Params map[string]any `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Params["model"] != "res.partner" || req.Params["method"] != "search" {
			io.WriteString(w, `{"jsonrpc":"2.0","error":{"message":"bad params"}}`)
			return
		}
		io.WriteString(w, `{"jsonrpc":"2.0","result":[3,1]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, protocol, err := New(srv.URL+"/web", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if protocol != ProtocolWeb {
		t.Fatalf("protocol = %q", protocol)
	}

	ctx := context.Background()
	uid, err := tr.Call(ctx, "common", "login", []any{"demo", "admin", "admin"})
	if err != nil || uid != 2 {
		t.Fatalf("login = %v, %v", uid, err)
	}
	res, err := tr.Call(ctx, "object", "execute_kw", []any{"demo", 2, "admin", "res.partner", "search", []any{[]any{}}})
	if err != nil {
		t.Fatalf("execute_kw error: %v", err)
	}
	if !reflect.DeepEqual(res, []any{3, 1}) {
		t.Errorf("result = %#v", res)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v", calls)
	}

	if _, err := tr.Call(ctx, "db", "drop", []any{"pw", "demo"}); err == nil {
		t.Error("expected error for unsupported service")
	}
}

type stubTransport struct{ result any }

func (s stubTransport) Call(ctx context.Context, service, method string, args []any) (any, error) {
	return s.result, nil
}

func TestTraceMasksPassword(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tr := Trace(stubTransport{result: []any{1, 2, 3}}, 1, zap.New(core))

	if _, err := tr.Call(context.Background(), "object", "execute_kw", []any{"db", 2, "secret", "res.partner", "search"}); err != nil {
		t.Fatal(err)
	}
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}
	if strings.Contains(entries[0].Message, "secret") {
		t.Errorf("password leaked: %s", entries[0].Message)
	}
	if entries[0].Message != `--> object.execute_kw("db", 2, "*", "res.partner", "search")` &&
		!strings.HasPrefix(entries[0].Message, `--> object.execute_kw("db",`) {
		t.Errorf("unexpected request line: %s", entries[0].Message)
	}
	if entries[1].Message != "<-- [1,2,3]" {
		t.Errorf("unexpected response line: %s", entries[1].Message)
	}

	logs.TakeAll()
	if _, err := tr.Call(context.Background(), "db", "list", []any{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.All()[0].Message, `"c"`) {
		t.Errorf("db arguments should not be masked: %s", logs.All()[0].Message)
	}
}

func TestTraceWidth(t *testing.T) {
	tests := []struct{ verbose, want int }{
		{0, 0}, {1, 79}, {2, 179}, {3, 9999}, {10, 9999}, {36, 36}, {120, 120},
	}
	for _, tt := range tests {
		if got := TraceWidth(tt.verbose); got != tt.want {
			t.Errorf("TraceWidth(%d) = %d, want %d", tt.verbose, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := truncate(long, 79)
	if len(got) != 79 || !strings.HasSuffix(got, "... L=100") {
		t.Errorf("truncate = %q (%d)", got, len(got))
	}
	if truncate("short", 79) != "short" {
		t.Error("short strings must not change")
	}
}
