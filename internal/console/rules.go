// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package console

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// Kind classifies a console line.
type Kind string

const (
	KindStarted  Kind = "started"
	KindStopping Kind = "stopping"
	KindJoined   Kind = "joined"
	KindLeft     Kind = "left"
	KindKicked   Kind = "kicked"
	KindBanned   Kind = "banned"
	KindPardoned Kind = "pardoned"
	KindChat     Kind = "chat"
	KindSeed     Kind = "seed"
	KindLog      Kind = "log"
)

// Capture group names recognised in rule patterns.
const (
	CapturePlayer  = "player"
	CaptureReason  = "reason"
	CaptureMessage = "message"
	CaptureSeed    = "seed"
)

// RulesVersion is the only rules file format understood.
const RulesVersion = 1

var ErrInvalidRules = errors.New("invalid console rules")

var requiredCaptures = map[Kind][]string{
	KindStarted:  nil,
	KindStopping: nil,
	KindJoined:   {CapturePlayer},
	KindLeft:     {CapturePlayer},
	KindKicked:   {CapturePlayer},
	KindBanned:   {CapturePlayer},
	KindPardoned: {CapturePlayer},
	KindChat:     {CapturePlayer, CaptureMessage},
	KindSeed:     {CaptureSeed},
}

// Rule maps a pattern to a line kind.
type Rule struct {
	Kind    Kind
	Pattern *regexp.Regexp
}

// RuleSet is an ordered rule table; the first matching rule wins.
type RuleSet struct {
	Version int
	Rules   []Rule
}

const (
	playerRe = `(?P<player>[A-Za-z0-9_]{1,16})`
	// server messages follow the "]: " of the log prefix; chat lines never do
	serverMsg = `(?:^|\]: )`
)

// DefaultRules targets the vanilla and Forge dedicated server log format.
func DefaultRules() *RuleSet {
	mk := func(k Kind, p string) Rule { return Rule{Kind: k, Pattern: regexp.MustCompile(p)} }
	return &RuleSet{
		Version: RulesVersion,
		Rules: []Rule{
			mk(KindStarted, serverMsg+`Done \([0-9.,]+s\)!`),
			mk(KindStopping, serverMsg+`Stopping (the )?server`),
			mk(KindJoined, serverMsg+playerRe+` joined the game$`),
			mk(KindLeft, serverMsg+playerRe+` left the game$`),
			mk(KindKicked, serverMsg+`Kicked `+playerRe+`: (?P<reason>.*)$`),
			mk(KindBanned, serverMsg+`Banned `+playerRe+`: (?P<reason>.*)$`),
			mk(KindPardoned, serverMsg+`Unbanned `+playerRe+`$`),
			mk(KindChat, `\]: <`+playerRe+`> (?P<message>.*)$`),
			mk(KindSeed, serverMsg+`Seed: \[(?P<seed>-?[0-9]+)\]$`),
		},
	}
}

type rulesFile struct {
	Version int `yaml:"version"`
	Rules   []struct {
		Kind    string `yaml:"kind"`
		Pattern string `yaml:"pattern"`
	} `yaml:"rules"`
}

// ParseRules decodes a YAML rules document strictly.
func ParseRules(data []byte) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f rulesFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if f.Version != RulesVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidRules, f.Version)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRules)
	}
	set := &RuleSet{Version: f.Version, Rules: make([]Rule, 0, len(f.Rules))}
	for i, r := range f.Rules {
		kind := Kind(r.Kind)
		need, known := requiredCaptures[kind]
		if !known {
			return nil, fmt.Errorf("%w: rule %d: unknown kind %q", ErrInvalidRules, i, r.Kind)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidRules, i, err)
		}
		names := re.SubexpNames()
		for _, c := range need {
			if !slices.Contains(names, c) {
				return nil, fmt.Errorf("%w: rule %d (%s) lacks capture %q", ErrInvalidRules, i, kind, c)
			}
		}
		set.Rules = append(set.Rules, Rule{Kind: kind, Pattern: re})
	}
	return set, nil
}

// LoadRules reads a rules file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	set, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Line is a classified console line.
type Line struct {
	Raw     string
	Kind    Kind
	Level   string
	Player  string
	Reason  string
	Message string
	Seed    string
}

var levelRe = regexp.MustCompile(`\[[0-9]{2}:[0-9]{2}:[0-9]{2}\] \[[^\]]*/([A-Z]+)\]`)

// Classify applies the first matching rule. Unmatched lines are KindLog.
func (s *RuleSet) Classify(raw string) Line {
	l := Line{Raw: raw, Kind: KindLog, Level: "INFO"}
	if m := levelRe.FindStringSubmatch(raw); m != nil {
		l.Level = m[1]
	}
	for _, r := range s.Rules {
		m := r.Pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		l.Kind = r.Kind
		for i, name := range r.Pattern.SubexpNames() {
			switch name {
			case CapturePlayer:
				l.Player = m[i]
			case CaptureReason:
				l.Reason = m[i]
			case CaptureMessage:
				l.Message = m[i]
			case CaptureSeed:
				l.Seed = m[i]
			}
		}
		return l
	}
	return l
}
