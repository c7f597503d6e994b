package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// Web maps service calls onto the controllers used by the web client. The
// session cookie returned by /web/session/authenticate authenticates the
// following calls, so the client must carry a cookie jar.
type Web struct {
	BaseURL string
	Client  *http.Client
}

// Call implements Transport for the subset of services the web client
// exposes: common.login, common.authenticate, common.version, db.list,
// db.server_version, object.execute and object.execute_kw.
func (t *Web) Call(ctx context.Context, service, method string, args []any) (any, error) {
	args, _ = prepare(args).([]any)

	switch service + "." + method {
	case "common.login", "common.authenticate":
		if len(args) < 3 {
			return nil, perrors.Newf("USAGE-0001", "Method", service+"."+method)
		}
		params := map[string]any{"db": args[0], "login": args[1], "password": args[2]}
		res, err := callJSON(ctx, t.Client, t.BaseURL+"/web/session/authenticate", params)
		if err != nil {
			var re *perrors.RemoteError
			if perrors.As(err, &re) && strings.Contains(re.Name, "AccessDenied") {
				return false, nil
			}
			return nil, err
		}
		session, _ := res.(map[string]any)
		if uid, ok := session["uid"].(int); ok {
			return uid, nil
		}
		return false, nil

	case "common.version":
		return callJSON(ctx, t.Client, t.BaseURL+"/web/webclient/version_info", map[string]any{})

	case "db.server_version":
		res, err := callJSON(ctx, t.Client, t.BaseURL+"/web/webclient/version_info", map[string]any{})
		if err != nil {
			return nil, err
		}
		info, _ := res.(map[string]any)
		return info["server_version"], nil

	case "db.list":
		return callJSON(ctx, t.Client, t.BaseURL+"/web/database/list", map[string]any{})

	case "object.execute", "object.execute_kw":
		if len(args) < 5 {
			return nil, perrors.Newf("USAGE-0001", "Method", service+"."+method)
		}
		model, _ := args[3].(string)
		name, _ := args[4].(string)
		callArgs := args[5:]
		kwargs := map[string]any{}
		if method == "execute_kw" {
			callArgs = []any{}
			if len(args) > 5 {
				callArgs, _ = args[5].([]any)
			}
			if len(args) > 6 {
				if kw, ok := args[6].(map[string]any); ok {
					kwargs = kw
				}
			}
		}
		params := map[string]any{
			"model":  model,
			"method": name,
			"args":   callArgs,
			"kwargs": kwargs,
		}
		return callJSON(ctx, t.Client, t.BaseURL+"/web/dataset/call_kw/"+model+"/"+name, params)
	}

	return nil, fmt.Errorf("%s.%s is not available over the web session API", service, method)
}
