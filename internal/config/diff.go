// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"reflect"
	"sort"
	"strings"
)

// hotReloadable lists the fields a running daemon applies without restart.
var hotReloadable = map[string]struct{}{
	"log.level": {},
}

// ChangeSummary describes the result of comparing two AppConfigs.
type ChangeSummary struct {
	ChangedFields   []string // YAML paths, sorted
	RestartRequired bool     // some changed field is not hot-reloadable
}

// Diff compares two configurations field by field using their YAML paths.
func Diff(old, next AppConfig) ChangeSummary {
	var s ChangeSummary
	s.compareStruct("", reflect.ValueOf(old), reflect.ValueOf(next))
	sort.Strings(s.ChangedFields)
	return s
}

func (s *ChangeSummary) compareStruct(prefix string, ov, nv reflect.Value) {
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		o, n := ov.Field(i), nv.Field(i)
		if o.Kind() == reflect.Struct {
			s.compareStruct(path, o, n)
			continue
		}
		if !reflect.DeepEqual(o.Interface(), n.Interface()) {
			s.ChangedFields = append(s.ChangedFields, path)
			if _, ok := hotReloadable[path]; !ok {
				s.RestartRequired = true
			}
		}
	}
}
