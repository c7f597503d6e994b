package errors

import (
	"fmt"
	"regexp"
	"strings"
)

// RemoteError is a fault reported by the server, normalized across the
// JSON-RPC and XML-RPC protocols.
type RemoteError struct {
	Name          string `json:"name"`
	Message       string `json:"message"`
	Arguments     []any  `json:"arguments,omitempty"`
	Debug         string `json:"debug,omitempty"`
	ExceptionType string `json:"exception_type,omitempty"`
	Code          any    `json:"code,omitempty"`
}

// Error returns a one-line "name: message" summary.
func (e *RemoteError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// IsWarning reports whether the fault is a business error rather than an
// internal server crash.
func (e *RemoteError) IsWarning() bool {
	return e.ExceptionType != "" && e.ExceptionType != "internal_error"
}

// Traceback returns the server traceback for internal errors, or the
// one-line summary for warnings and database connection failures.
func (e *RemoteError) Traceback() string {
	if e.IsWarning() || strings.HasPrefix(e.Message, "FATAL:") || e.Debug == "" {
		return e.Error()
	}
	return e.Debug
}

// FromJSONRPC builds a RemoteError from the "error" member of a JSON-RPC
// response.
func FromJSONRPC(payload map[string]any) *RemoteError {
	re := &RemoteError{Code: payload["code"], ExceptionType: "internal_error"}
	data, _ := payload["data"].(map[string]any)
	if data == nil {
		re.Name = "ServerError"
		re.Message, _ = payload["message"].(string)
		return re
	}
	re.Name, _ = data["name"].(string)
	re.Debug, _ = data["debug"].(string)
	if t, ok := data["exception_type"].(string); ok && t != "" {
		re.ExceptionType = t
	}
	if args, ok := data["arguments"].([]any); ok {
		re.Arguments = args
	}
	re.Message = firstArgument(re.Arguments)
	if re.Message == "" {
		re.Message, _ = data["message"].(string)
	}
	if re.Message == "" {
		re.Message, _ = payload["message"].(string)
	}
	return re
}

var warningTuple = regexp.MustCompile(`\((.*), None\)$`)

// FromXMLRPCFault builds a RemoteError from an XML-RPC fault. Older servers
// send the message in faultCode and the traceback in faultString; the
// exception name is recovered from the last traceback line.
func FromXMLRPCFault(faultCode any, faultString string) *RemoteError {
	message, ok := faultCode.(string)
	if !ok {
		return &RemoteError{
			Name:          "Fault",
			Message:       faultString,
			Code:          faultCode,
			ExceptionType: "internal_error",
		}
	}

	re := &RemoteError{Name: "Fault", Debug: faultString, Code: faultCode}
	warning := strings.HasPrefix(message, "warning --")
	if warning {
		if parts := strings.SplitN(message, " ", 3); len(parts) == 3 {
			message = parts[2]
		}
		message = warningTuple.ReplaceAllStringFunc(message, func(m string) string {
			inner := warningTuple.FindStringSubmatch(m)[1]
			return strings.Trim(inner, `'"`)
		})
	} else {
		if i := strings.LastIndex(message, "\n"); i >= 0 && message[i+1:] == "None" {
			warning, message = true, message[:i]
		}
		lines := strings.Split(strings.TrimRight(faultString, " \t\r\n"), "\n")
		if last := lines[len(lines)-1]; strings.HasPrefix(last, "odoo.") {
			warning = true
			re.Name, _, _ = strings.Cut(last, ":")
		}
	}
	re.Message = message
	re.Arguments = []any{message}
	re.ExceptionType = "internal_error"
	if warning {
		re.ExceptionType = "warning"
	}
	return re
}

// Summary returns the one-line text shown for err in the shell. Server
// tracebacks are included only for internal errors.
func Summary(err error) string {
	var re *RemoteError
	var le *Error
	switch {
	case As(err, &re):
		return re.Traceback()
	case As(err, &le):
		return le.PrettyString()
	}
	return err.Error()
}

func firstArgument(args []any) string {
	if len(args) == 0 {
		return ""
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return fmt.Sprint(args[0])
}
