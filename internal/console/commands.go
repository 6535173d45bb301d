// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// StopCommand asks a dedicated server to shut down cleanly.
const StopCommand = "stop"

// SeedCommand makes the server print "Seed: [<n>]".
const SeedCommand = "seed"

var playerName = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

func checkPlayer(p string) error {
	if !playerName.MatchString(p) {
		return fmt.Errorf("%w: bad player name %q", ErrInvalidLine, p)
	}
	return nil
}

func checkText(field, s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("%w: %s contains a line break", ErrInvalidLine, field)
	}
	return nil
}

// KickCommand renders "kick <player> <reason>".
func KickCommand(player, reason string) (string, error) {
	if err := checkPlayer(player); err != nil {
		return "", err
	}
	if err := checkText("reason", reason); err != nil {
		return "", err
	}
	return strings.TrimSpace("kick " + player + " " + reason), nil
}

// BanCommand renders "ban <player> <reason>".
func BanCommand(player, reason string) (string, error) {
	if err := checkPlayer(player); err != nil {
		return "", err
	}
	if err := checkText("reason", reason); err != nil {
		return "", err
	}
	return strings.TrimSpace("ban " + player + " " + reason), nil
}

// PardonCommand renders "pardon <player>".
func PardonCommand(player string) (string, error) {
	if err := checkPlayer(player); err != nil {
		return "", err
	}
	return "pardon " + player, nil
}

type tellraw struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// MessageCommand broadcasts "<from> message" to every player.
func MessageCommand(from, message string) (string, error) {
	if err := checkText("from", from); err != nil {
		return "", err
	}
	if err := checkText("message", message); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tellraw{Text: "<" + from + "> " + message, Color: "white"}); err != nil {
		return "", err
	}
	return "tellraw @a " + strings.TrimSuffix(buf.String(), "\n"), nil
}
