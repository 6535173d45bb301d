// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Framing bytes of the line-oriented wire format.
const (
	fieldSep  = "\x1c"
	groupSep  = "\x1d"
	recordSep = "\x1e"
)

// Encode renders ev as "<code:%05x>FS<id:%02x>RS<value>GS...". The timestamp
// is argument 00; a correlation token travels as argument ff.
func (c *Catalog) Encode(ev Event) (string, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	ev = ev.clone()
	if err := c.Validate(&ev); err != nil {
		return "", err
	}
	spec, _ := c.Lookup(ev.Code)

	parts := make([]string, 0, len(spec.Args)+2)
	parts = append(parts, fmt.Sprintf("%02x%s%d", timestampArgID, recordSep, ev.Time.Unix()))
	for _, a := range spec.Args {
		v, err := encodeValue(a.Kind, ev.Args[a.Name])
		if err != nil {
			return "", schemaErr(spec.Name, a.Name, "%v", err)
		}
		parts = append(parts, fmt.Sprintf("%02x%s%s", a.ID, recordSep, v))
	}
	if ev.Correlation != "" {
		parts = append(parts, fmt.Sprintf("%02x%s%s", correlationArgID, recordSep, ev.Correlation))
	}
	return fmt.Sprintf("%05x%s%s", uint32(ev.Code), fieldSep, strings.Join(parts, groupSep)), nil
}

// Decode parses one framed event and validates it against the catalog.
func (c *Catalog) Decode(raw string) (Event, error) {
	head, body, ok := strings.Cut(raw, fieldSep)
	if !ok {
		return Event{}, schemaErr("wire", "", "missing field separator")
	}
	n, err := strconv.ParseUint(head, 16, 32)
	if err != nil {
		return Event{}, schemaErr("wire", "", "bad code %q", head)
	}
	code := Code(n)
	spec, ok := c.Lookup(code)
	if !ok {
		return Event{}, schemaErr(code.String(), "", "unknown event code")
	}

	byID := make(map[uint8]ArgSpec, len(spec.Args))
	for _, a := range spec.Args {
		byID[a.ID] = a
	}

	ev := Event{Code: code, Name: spec.Name, Args: Args{}}
	if body != "" {
		for _, field := range strings.Split(body, groupSep) {
			idHex, val, ok := strings.Cut(field, recordSep)
			if !ok {
				return Event{}, schemaErr(spec.Name, "", "malformed argument %q", field)
			}
			id64, err := strconv.ParseUint(idHex, 16, 8)
			if err != nil {
				return Event{}, schemaErr(spec.Name, "", "bad argument id %q", idHex)
			}
			id := uint8(id64)
			switch id {
			case timestampArgID:
				sec, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					return Event{}, schemaErr(spec.Name, ArgTimestamp, "%v", err)
				}
				ev.Time = time.Unix(sec, 0)
				continue
			case correlationArgID:
				ev.Correlation = val
				continue
			}
			a, ok := byID[id]
			if !ok {
				return Event{}, schemaErr(spec.Name, "", "undeclared argument id %02x", id)
			}
			v, err := decodeValue(a.Kind, val)
			if err != nil {
				return Event{}, schemaErr(spec.Name, a.Name, "%v", err)
			}
			ev.Args[a.Name] = v
		}
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if err := c.Validate(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func encodeValue(kind ArgKind, v any) (string, error) {
	switch kind {
	case ArgString:
		return v.(string), nil
	case ArgInt:
		return strconv.FormatInt(v.(int64), 10), nil
	case ArgBool:
		if v.(bool) {
			return "t", nil
		}
		return "f", nil
	case ArgTime:
		return strconv.FormatInt(v.(time.Time).Unix(), 10), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func decodeValue(kind ArgKind, s string) (any, error) {
	switch kind {
	case ArgString:
		return s, nil
	case ArgInt:
		return strconv.ParseInt(s, 10, 64)
	case ArgBool:
		switch s {
		case "t":
			return true, nil
		case "f":
			return false, nil
		}
		return nil, fmt.Errorf("bad bool %q", s)
	case ArgTime:
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return time.Unix(sec, 0), nil
	default:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// sortedArgNames is used by String for stable output.
func sortedArgNames(a Args) []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders an event for logs.
func (e Event) String() string {
	var sb strings.Builder
	if e.Name != "" {
		sb.WriteString(e.Name)
	} else {
		sb.WriteString(e.Code.String())
	}
	sb.WriteByte('{')
	for i, k := range sortedArgNames(e.Args) {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, e.Args[k])
	}
	sb.WriteByte('}')
	return sb.String()
}
