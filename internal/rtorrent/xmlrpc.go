// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rtorrent

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Fault is an XML-RPC fault response.
type Fault struct {
	Code   int64
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.String)
}

// Call is one entry of a system.multicall batch.
type Call struct {
	Method string
	Params []any
}

func encodeCall(method string, params []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, err
	}
	buf.WriteString("</methodName><params>")
	for _, p := range params {
		buf.WriteString("<param>")
		if err := encodeValue(&buf, p); err != nil {
			return nil, errors.Wrapf(err, "could not encode %s params", method)
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	buf.WriteString("<value>")
	switch val := v.(type) {
	case nil:
		buf.WriteString("<string></string>")
	case string:
		buf.WriteString("<string>")
		if err := xml.EscapeText(buf, []byte(val)); err != nil {
			return err
		}
		buf.WriteString("</string>")
	case bool:
		if val {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case int:
		encodeInt(buf, int64(val))
	case int64:
		encodeInt(buf, val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < math.MaxInt64 {
			encodeInt(buf, int64(val))
		} else {
			buf.WriteString("<double>" + strconv.FormatFloat(val, 'f', -1, 64) + "</double>")
		}
	case []string:
		buf.WriteString("<array><data>")
		for _, item := range val {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case []any:
		buf.WriteString("<array><data>")
		for _, item := range val {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<struct>")
		for _, k := range keys {
			buf.WriteString("<member><name>")
			if err := xml.EscapeText(buf, []byte(k)); err != nil {
				return err
			}
			buf.WriteString("</name>")
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
			buf.WriteString("</member>")
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("unsupported xmlrpc value %T", v)
	}
	buf.WriteString("</value>")
	return nil
}

func encodeInt(buf *bytes.Buffer, n int64) {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		buf.WriteString("<i4>" + strconv.FormatInt(n, 10) + "</i4>")
		return
	}
	buf.WriteString("<i8>" + strconv.FormatInt(n, 10) + "</i8>")
}

type xmlValue struct {
	String  *string    `xml:"string"`
	Int     *string    `xml:"int"`
	I4      *string    `xml:"i4"`
	I8      *string    `xml:"i8"`
	Boolean *string    `xml:"boolean"`
	Double  *string    `xml:"double"`
	Array   *xmlArray  `xml:"array"`
	Struct  *xmlStruct `xml:"struct"`
	Text    string     `xml:",chardata"`
}

type xmlArray struct {
	Values []xmlValue `xml:"data>value"`
}

type xmlStruct struct {
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string   `xml:"name"`
	Value xmlValue `xml:"value"`
}

type methodResponse struct {
	Params []xmlValue `xml:"params>param>value"`
	Fault  *xmlValue  `xml:"fault>value"`
}

// decodeResponse returns the single result value of a methodResponse.
func decodeResponse(data []byte) (any, error) {
	var resp methodResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "could not decode xmlrpc response")
	}

	if resp.Fault != nil {
		v, err := resp.Fault.decode()
		if err != nil {
			return nil, err
		}
		return nil, faultFrom(v)
	}

	if len(resp.Params) == 0 {
		return nil, nil
	}
	return resp.Params[0].decode()
}

func faultFrom(v any) *Fault {
	m, _ := v.(map[string]any)
	f := &Fault{}
	if code, ok := m["faultCode"].(int64); ok {
		f.Code = code
	}
	if s, ok := m["faultString"].(string); ok {
		f.String = s
	}
	return f
}

func (v *xmlValue) decode() (any, error) {
	switch {
	case v.String != nil:
		return *v.String, nil
	case v.Int != nil:
		return parseInt(*v.Int)
	case v.I4 != nil:
		return parseInt(*v.I4)
	case v.I8 != nil:
		return parseInt(*v.I8)
	case v.Boolean != nil:
		s := strings.TrimSpace(*v.Boolean)
		return s == "1" || strings.EqualFold(s, "true"), nil
	case v.Double != nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid xmlrpc double")
		}
		return f, nil
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for i := range v.Array.Values {
			item, err := v.Array.Values[i].decode()
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for i := range v.Struct.Members {
			m := &v.Struct.Members[i]
			item, err := m.Value.decode()
			if err != nil {
				return nil, err
			}
			out[m.Name] = item
		}
		return out, nil
	default:
		return v.Text, nil
	}
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid xmlrpc integer")
	}
	return n, nil
}

// multicallParams builds the single array argument of system.multicall.
func multicallParams(calls []Call) []any {
	batch := make([]any, 0, len(calls))
	for _, c := range calls {
		params := c.Params
		if params == nil {
			params = []any{}
		}
		batch = append(batch, map[string]any{"methodName": c.Method, "params": params})
	}
	return []any{batch}
}

// multicallResults unwraps the per-call [value] arrays of a system.multicall
// response. A fault entry becomes a *Fault in its slot.
func multicallResults(v any) ([]any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected multicall result %T", v)
	}
	out := make([]any, len(items))
	for i, item := range items {
		switch r := item.(type) {
		case []any:
			if len(r) > 0 {
				out[i] = r[0]
			}
		case map[string]any:
			out[i] = faultFrom(r)
		}
	}
	return out, nil
}
