// Package transport sends service calls to an Odoo server over JSON-RPC,
// XML-RPC or the web session API.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transport sends one service call and returns the decoded result.
//
// Server faults are returned as *errors.RemoteError. Connectivity problems
// are returned as ordinary wrapped errors.
type Transport interface {
	Call(ctx context.Context, service, method string, args []any) (any, error)
}

// Sequence is implemented by values that are sent as arrays, such as
// search terms and tuples.
type Sequence interface {
	Elements() []any
}

// Protocol names returned by New.
const (
	ProtocolXMLRPC  = "xmlrpc"
	ProtocolJSONRPC = "jsonrpc"
	ProtocolWeb     = "web"
)

// Options configures the HTTP side of a transport.
type Options struct {
	Timeout     time.Duration
	Compression bool // accept gzip responses
	Insecure    bool // skip TLS certificate verification
	Verbose     int  // trace width selector, 0 disables tracing
	Logger      *zap.Logger

	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
}

// New builds the transport matching the server URL:
//
//	http://host:8069/jsonrpc  -> JSON-RPC
//	http://host:8069/web      -> web session
//	http://host:8069          -> XML-RPC on /xmlrpc
//
// It returns the transport and the protocol name.
func New(server string, opts Options) (Transport, string, error) {
	server = strings.TrimRight(server, "/")
	u, err := url.Parse(server)
	if err != nil {
		return nil, "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("invalid server URL %q: scheme must be http or https", server)
	}

	client := opts.HTTPClient
	if client == nil {
		withJar := strings.Contains(u.Path, "/web")
		client, err = newHTTPClient(opts, withJar)
		if err != nil {
			return nil, "", err
		}
	}

	var t Transport
	var protocol string
	switch {
	case strings.Contains(u.Path, "/jsonrpc"):
		t, protocol = &JSONRPC{URL: server, Client: client}, ProtocolJSONRPC
	case strings.Contains(u.Path, "/web"):
		base := server[:strings.Index(server, "/web")]
		t, protocol = &Web{BaseURL: base, Client: client}, ProtocolWeb
	default:
		if !strings.Contains(u.Path, "/xmlrpc") {
			server += "/xmlrpc"
		}
		t, protocol = &XMLRPC{URL: server, Client: client}, ProtocolXMLRPC
	}

	if opts.Verbose > 0 {
		log := opts.Logger
		if log == nil {
			log = zap.NewNop()
		}
		t = Trace(t, opts.Verbose, log)
	}
	return t, protocol, nil
}

// normalize converts decoded JSON into the value shapes shared by all
// transports: int, float64, string, bool, nil, []any and map[string]any.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	}
	return v
}

// prepare expands Sequence values into plain slices, recursively, so that
// encoders only deal with basic shapes.
func prepare(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case Sequence:
		return prepare(x.Elements())
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = prepare(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = prepare(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = prepare(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = prepare(iter.Value().Interface())
		}
		return out
	}
	return v
}
