package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// JSONRPC calls services through the /jsonrpc endpoint.
type JSONRPC struct {
	URL    string
	Client *http.Client
}

// Call implements Transport.
func (t *JSONRPC) Call(ctx context.Context, service, method string, args []any) (any, error) {
	params := map[string]any{
		"service": service,
		"method":  method,
		"args":    prepare(args),
	}
	return callJSON(ctx, t.Client, t.URL, params)
}

type jsonRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

type jsonResponse struct {
	Result any            `json:"result"`
	Error  map[string]any `json:"error"`
}

// callJSON posts a JSON-RPC "call" envelope carrying params and decodes the
// result. Both the /jsonrpc endpoint and the web controllers use it.
func callJSON(ctx context.Context, client *http.Client, url string, params any) (any, error) {
	body, err := json.Marshal(jsonRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	data, err := post(ctx, client, url, "application/json", body)
	if err != nil {
		return nil, err
	}

	var resp jsonResponse
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC response from %s: %w", url, err)
	}
	if resp.Error != nil {
		return nil, perrors.FromJSONRPC(normalize(resp.Error).(map[string]any))
	}
	return normalize(resp.Result), nil
}
