// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"fmt"
	"sort"
	"time"
)

// Code is the stable numeric identifier of an event.
type Code uint32

// replyOffset separates reply codes from the codes they answer.
const replyOffset Code = 0x10000

// Reply returns the code of the reply event for a request code.
func (c Code) Reply() Code { return c + replyOffset }

// IsReply reports whether c is a derived reply code.
func (c Code) IsReply() bool { return c >= replyOffset }

// Origin returns the request code a reply code answers.
func (c Code) Origin() Code {
	if c.IsReply() {
		return c - replyOffset
	}
	return c
}

func (c Code) String() string { return fmt.Sprintf("0x%05x", uint32(c)) }

// Kind separates single-handler requests from fan-out notifications.
type Kind int

const (
	KindNotification Kind = iota
	KindRequest
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	default:
		return "notification"
	}
}

// ArgKind is the declared type of an event argument.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgString
	ArgInt
	ArgBool
	ArgTime
	ArgAny
)

func (k ArgKind) String() string {
	switch k {
	case ArgString:
		return "string"
	case ArgInt:
		return "int"
	case ArgBool:
		return "bool"
	case ArgTime:
		return "time"
	case ArgAny:
		return "any"
	default:
		return "none"
	}
}

// ArgSpec declares one named, typed argument. ID is its position on the wire.
type ArgSpec struct {
	ID   uint8
	Name string
	Kind ArgKind
}

// Spec declares the shape of one event code.
type Spec struct {
	Code    Code
	Name    string
	Kind    Kind
	Args    []ArgSpec
	Returns ArgKind // request codes only
}

// ReplySpec derives the reply declaration of a request spec.
func (s Spec) ReplySpec() Spec {
	return Spec{
		Code: s.Code.Reply(),
		Name: s.Name + ".reply",
		Kind: KindReply,
		Args: []ArgSpec{{ID: 1, Name: ArgResult, Kind: s.Returns}},
	}
}

func (s Spec) arg(name string) (ArgSpec, bool) {
	for _, a := range s.Args {
		if a.Name == name {
			return a, true
		}
	}
	return ArgSpec{}, false
}

// Catalog is the immutable registry of event declarations.
type Catalog struct {
	specs  map[Code]Spec
	byName map[string]Code
}

// NewCatalog builds a catalog, rejecting duplicate codes or names.
func NewCatalog(specs ...Spec) (*Catalog, error) {
	c := &Catalog{specs: make(map[Code]Spec, len(specs)), byName: make(map[string]Code, len(specs))}
	for _, s := range specs {
		if s.Code == 0 || s.Code.IsReply() {
			return nil, fmt.Errorf("event %q: code %s out of range", s.Name, s.Code)
		}
		if _, dup := c.specs[s.Code]; dup {
			return nil, fmt.Errorf("event %q: duplicate code %s", s.Name, s.Code)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate event name %q", s.Name)
		}
		if s.Kind == KindRequest && s.Returns == ArgNone {
			return nil, fmt.Errorf("event %q: request without return kind", s.Name)
		}
		seen := make(map[uint8]bool, len(s.Args))
		for _, a := range s.Args {
			if a.ID == timestampArgID || a.ID == correlationArgID || seen[a.ID] {
				return nil, fmt.Errorf("event %q: argument %q has reserved or duplicate id %02x", s.Name, a.Name, a.ID)
			}
			seen[a.ID] = true
		}
		c.specs[s.Code] = s
		c.byName[s.Name] = s.Code
	}
	return c, nil
}

// Lookup returns the declaration for code, deriving reply declarations.
func (c *Catalog) Lookup(code Code) (Spec, bool) {
	if code.IsReply() {
		s, ok := c.specs[code.Origin()]
		if !ok || s.Kind != KindRequest {
			return Spec{}, false
		}
		return s.ReplySpec(), true
	}
	s, ok := c.specs[code]
	return s, ok
}

// ByName resolves a symbolic name such as "server.start".
func (c *Catalog) ByName(name string) (Spec, bool) {
	code, ok := c.byName[name]
	if !ok {
		return Spec{}, false
	}
	return c.specs[code], true
}

// Specs returns all declarations ordered by code.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Validate checks ev against its declaration. Integer arguments are
// normalised to int64 in place.
func (c *Catalog) Validate(ev *Event) error {
	spec, ok := c.Lookup(ev.Code)
	if !ok {
		return schemaErr(ev.Code.String(), "", "unknown event code")
	}
	ev.Name = spec.Name
	if ev.Time.IsZero() {
		return schemaErr(spec.Name, ArgTimestamp, "missing")
	}
	for _, a := range spec.Args {
		v, present := ev.Args[a.Name]
		if !present {
			return schemaErr(spec.Name, a.Name, "missing")
		}
		norm, err := conform(a.Kind, v)
		if err != nil {
			return schemaErr(spec.Name, a.Name, "%v", err)
		}
		ev.Args[a.Name] = norm
	}
	for name := range ev.Args {
		if _, ok := spec.arg(name); !ok {
			return schemaErr(spec.Name, name, "undeclared argument")
		}
	}
	return nil
}

func conform(kind ArgKind, v any) (any, error) {
	switch kind {
	case ArgAny:
		return v, nil
	case ArgString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ArgBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ArgTime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case ArgInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint32:
			return int64(n), nil
		}
	}
	return nil, fmt.Errorf("want %s, got %T", kind, v)
}
