/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the build version and whether a newer release exists.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is set at build time:
//
//	-X github.com/friendsincode/grimnir_display/internal/version.Version=X.Y.Z
var Version = "0.1.0"

const releasesURL = "https://api.github.com/repos/friendsincode/grimnir_display/releases/latest"

// UpdateInfo is the outcome of the last release check.
type UpdateInfo struct {
	CurrentVersion  string    `json:"currentVersion"`
	LatestVersion   string    `json:"latestVersion,omitempty"`
	UpdateAvailable bool      `json:"updateAvailable"`
	ReleaseURL      string    `json:"releaseUrl,omitempty"`
	CheckedAt       time.Time `json:"checkedAt,omitempty"`
}

// Checker polls the release feed so a fleet operator can see which displays
// run stale builds.
type Checker struct {
	url    string
	period time.Duration
	client *http.Client
	logger zerolog.Logger

	mu   sync.RWMutex
	info UpdateInfo
}

// NewChecker creates a checker against the public release feed.
func NewChecker(logger zerolog.Logger) *Checker {
	return newChecker(releasesURL, logger)
}

func newChecker(url string, logger zerolog.Logger) *Checker {
	return &Checker{
		url:    url,
		period: 6 * time.Hour,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "update-checker").Logger(),
		info:   UpdateInfo{CurrentVersion: Version},
	}
}

// Run checks once immediately and then every period until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		if err := c.Check(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("release check failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Info returns the last check result.
func (c *Checker) Info() UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Check fetches the latest release once.
func (c *Checker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "Grimnir-Display/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch release: unexpected status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("decode release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: Compare(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
		CheckedAt:       time.Now(),
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().Str("current", Version).Str("latest", latest).Msg("new version available")
	}
	return nil
}

// Compare orders two semver strings: -1 if a < b, 0 if equal, 1 if a > b.
// Pre-release suffixes are ignored.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		out[i], _ = strconv.Atoi(part)
	}
	return out
}
