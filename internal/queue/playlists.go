/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// LoadPlaylists reads a YAML document mapping playlist keys to entries:
//
//	lobby-loop:
//	  - assetRef: /media/welcome.mp4
//	  - assetRef: /media/menu.mp4
//	    overrides: {volume: 0.4, loop: true}
//
// An empty path yields a resolver with no playlists.
func LoadPlaylists(path string) (StaticResolver, error) {
	if path == "" {
		return StaticResolver{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return StaticResolver{}, fmt.Errorf("read playlist file: %w", err)
	}
	return ParsePlaylists(data)
}

// ParsePlaylists decodes the playlist document format read by LoadPlaylists.
func ParsePlaylists(data []byte) (StaticResolver, error) {
	var playlists map[string][]Entry
	if err := yaml.Unmarshal(data, &playlists); err != nil {
		return StaticResolver{}, fmt.Errorf("parse playlist file: %w", err)
	}
	for key, entries := range playlists {
		if lo.ContainsBy(entries, func(e Entry) bool { return e.AssetRef == "" }) {
			return StaticResolver{}, fmt.Errorf("playlist %q has an entry without assetRef", key)
		}
		for _, e := range entries {
			if v := e.Overrides.Volume; v != nil && (*v < 0 || *v > 1) {
				return StaticResolver{}, fmt.Errorf("playlist %q: volume %v for %s outside [0,1]", key, *v, e.AssetRef)
			}
		}
	}
	return StaticResolver{Playlists: playlists}, nil
}
