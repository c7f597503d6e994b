package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// XMLRPC calls services on /xmlrpc/<service>. The nil extension is enabled
// so that None can be sent and received.
type XMLRPC struct {
	URL    string
	Client *http.Client
}

// Call implements Transport.
func (t *XMLRPC) Call(ctx context.Context, service, method string, args []any) (any, error) {
	body, err := encodeCall(method, args)
	if err != nil {
		return nil, err
	}
	data, err := post(ctx, t.Client, t.URL+"/"+service, "text/xml", body)
	if err != nil {
		return nil, err
	}
	return decodeResponse(bytes.NewReader(data))
}

func encodeCall(method string, args []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>` + "\n<methodCall>\n<methodName>")
	xml.EscapeText(&buf, []byte(method))
	buf.WriteString("</methodName>\n<params>\n")
	for _, arg := range args {
		buf.WriteString("<param>\n")
		if err := encodeValue(&buf, prepare(arg)); err != nil {
			return nil, err
		}
		buf.WriteString("</param>\n")
	}
	buf.WriteString("</params>\n</methodCall>\n")
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case int64:
		v = int(x)
	case int32:
		v = int(x)
	}

	buf.WriteString("<value>")
	switch x := v.(type) {
	case nil:
		buf.WriteString("<nil/>")
	case bool:
		if x {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case int:
		if x < math.MinInt32 || x > math.MaxInt32 {
			return fmt.Errorf("int %d exceeds XML-RPC limits", x)
		}
		fmt.Fprintf(buf, "<int>%d</int>", x)
	case float64:
		buf.WriteString("<double>" + strconv.FormatFloat(x, 'g', -1, 64) + "</double>")
	case float32:
		buf.WriteString("<double>" + strconv.FormatFloat(float64(x), 'g', -1, 32) + "</double>")
	case string:
		buf.WriteString("<string>")
		xml.EscapeText(buf, []byte(x))
		buf.WriteString("</string>")
	case []byte:
		buf.WriteString("<base64>" + base64.StdEncoding.EncodeToString(x) + "</base64>")
	case time.Time:
		buf.WriteString("<dateTime.iso8601>" + x.Format("20060102T15:04:05") + "</dateTime.iso8601>")
	case []any:
		buf.WriteString("<array><data>\n")
		for _, item := range x {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<struct>\n")
		for _, k := range keys {
			buf.WriteString("<member>\n<name>")
			xml.EscapeText(buf, []byte(k))
			buf.WriteString("</name>\n")
			if err := encodeValue(buf, x[k]); err != nil {
				return err
			}
			buf.WriteString("</member>\n")
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("cannot marshal %T to XML-RPC", v)
	}
	buf.WriteString("</value>\n")
	return nil
}

// decodeResponse decodes a methodResponse. A fault is returned as
// *errors.RemoteError.
func decodeResponse(r io.Reader) (any, error) {
	d := xml.NewDecoder(r)
	fault := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("malformed XML-RPC response: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "methodResponse", "params", "param":
		case "fault":
			fault = true
		case "value":
			v, err := decodeValue(d)
			if err != nil {
				return nil, fmt.Errorf("malformed XML-RPC response: %w", err)
			}
			if !fault {
				return v, nil
			}
			m, _ := v.(map[string]any)
			text, _ := m["faultString"].(string)
			return nil, perrors.FromXMLRPCFault(m["faultCode"], text)
		default:
			return nil, fmt.Errorf("malformed XML-RPC response: unexpected <%s>", se.Name.Local)
		}
	}
}

// decodeValue reads the content of a <value> element up to its end tag.
// Untyped content is a string.
func decodeValue(d *xml.Decoder) (any, error) {
	var text strings.Builder
	var result any
	typed := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if !typed {
				text.Write(t)
			}
		case xml.StartElement:
			result, err = decodeTyped(d, t)
			if err != nil {
				return nil, err
			}
			typed = true
		case xml.EndElement:
			if typed {
				return result, nil
			}
			return text.String(), nil
		}
	}
}

func decodeTyped(d *xml.Decoder, start xml.StartElement) (any, error) {
	switch start.Name.Local {
	case "array":
		return decodeArray(d)
	case "struct":
		return decodeStruct(d)
	case "nil":
		return nil, d.Skip()
	}

	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return nil, err
	}
	switch start.Name.Local {
	case "int", "i4", "i8":
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", s)
		}
		return int(n), nil
	case "boolean":
		return strings.TrimSpace(s) == "1", nil
	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("bad double %q", s)
		}
		return f, nil
	case "string", "dateTime.iso8601":
		return s, nil
	case "base64":
		return strings.TrimSpace(s), nil
	}
	return nil, fmt.Errorf("unsupported type <%s>", start.Name.Local)
}

func decodeArray(d *xml.Decoder) ([]any, error) {
	items := []any{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := decodeValue(d)
				if err != nil {
					return nil, err
				}
				items = append(items, v)
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return items, nil
			}
		}
	}
}

func decodeStruct(d *xml.Decoder) (map[string]any, error) {
	m := map[string]any{}
	var name string
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if err := d.DecodeElement(&name, &t); err != nil {
					return nil, err
				}
			case "value":
				v, err := decodeValue(d)
				if err != nil {
					return nil, err
				}
				m[name] = v
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return m, nil
			}
		}
	}
}
