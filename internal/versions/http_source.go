// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	maxBodyBytes       = 8 << 20
)

var (
	ErrUpstreamStatus      = errors.New("catalog upstream: unexpected status")
	ErrUpstreamBadResponse = errors.New("catalog upstream: invalid response format")
)

// UpstreamError carries the failing request and status.
type UpstreamError struct {
	Sentinel error
	URL      string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("catalog upstream %s: %v", e.URL, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Sentinel }

// HTTPSource reads the engine list from a Mojang-style version manifest and
// loader builds from per-kind URL templates containing "{engine}". The
// loader endpoints return a JSON array of LoaderBuild.
type HTTPSource struct {
	Client      *http.Client
	ManifestURL string
	LoaderURLs  map[LoaderKind]string
	UserAgent   string
}

var _ Source = (*HTTPSource)(nil)

type manifest struct {
	Versions []struct {
		ID          string    `json:"id"`
		Type        string    `json:"type"`
		ReleaseTime time.Time `json:"releaseTime"`
	} `json:"versions"`
}

// Engines returns release versions, newest first.
func (s *HTTPSource) Engines(ctx context.Context) ([]string, error) {
	target := s.ManifestURL
	if target == "" {
		target = DefaultManifestURL
	}
	var m manifest
	found, err := s.getJSON(ctx, target, &m)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &UpstreamError{Sentinel: ErrUpstreamStatus, URL: target, Status: http.StatusNotFound}
	}
	out := make([]string, 0, len(m.Versions))
	for _, v := range m.Versions {
		if v.Type == "release" && v.ID != "" {
			out = append(out, v.ID)
		}
	}
	return out, nil
}

// Loaders returns the builds for kind on engine. A 404 means no builds.
func (s *HTTPSource) Loaders(ctx context.Context, kind LoaderKind, engine string) ([]LoaderBuild, error) {
	tmpl, ok := s.LoaderURLs[kind]
	if !ok || tmpl == "" {
		return nil, fmt.Errorf("no loader source configured for %q", kind)
	}
	target := strings.ReplaceAll(tmpl, "{engine}", url.PathEscape(engine))
	var builds []LoaderBuild
	found, err := s.getJSON(ctx, target, &builds)
	if err != nil {
		return nil, err
	}
	if !found {
		return []LoaderBuild{}, nil
	}
	for _, b := range builds {
		if b.Version == "" {
			return nil, &UpstreamError{Sentinel: ErrUpstreamBadResponse, URL: target, Err: errors.New("build without version")}
		}
	}
	return builds, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, target string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, &UpstreamError{Sentinel: ErrUpstreamStatus, URL: target, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return false, &UpstreamError{Sentinel: ErrUpstreamBadResponse, URL: target, Err: err}
	}
	return true, nil
}
