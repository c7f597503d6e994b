package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var traceWidths = []int{79, 179, 9999}

// TraceWidth returns the line width used for a verbosity level. Levels of
// 36 and above are taken as the width itself.
func TraceWidth(verbose int) int {
	switch {
	case verbose <= 0:
		return 0
	case verbose >= 36:
		return verbose
	case verbose > len(traceWidths):
		return traceWidths[len(traceWidths)-1]
	}
	return traceWidths[verbose-1]
}

type traced struct {
	next  Transport
	width int
	log   *zap.Logger
}

// Trace wraps t so that every call and its result are logged at debug
// level, one truncated line each. Passwords are masked.
func Trace(t Transport, verbose int, log *zap.Logger) Transport {
	return &traced{next: t, width: TraceWidth(verbose), log: log}
}

func (t *traced) Call(ctx context.Context, service, method string, args []any) (any, error) {
	shown := args
	if service != "db" && len(args) > 2 {
		shown = append([]any(nil), args...)
		shown[2] = "*"
	}
	parts := make([]string, len(shown))
	for i, a := range shown {
		parts[i] = repr(a)
	}
	t.log.Debug(truncate(fmt.Sprintf("--> %s.%s(%s)", service, method, strings.Join(parts, ", ")), t.width))

	res, err := t.next.Call(ctx, service, method, args)
	if err != nil {
		t.log.Debug(truncate("<-- "+err.Error(), t.width))
		return nil, err
	}
	t.log.Debug(truncate("<-- "+repr(res), t.width))
	return res, nil
}

func repr(v any) string {
	b, err := json.Marshal(prepare(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// truncate shortens s to width columns, ending with "... L=<len>".
func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	suffix := fmt.Sprintf("... L=%d", len(s))
	if width <= len(suffix) {
		return s[:width]
	}
	return s[:width-len(suffix)] + suffix
}
