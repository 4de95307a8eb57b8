/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/samber/lo"
)

// Overrides are per-item playback settings.
type Overrides struct {
	StartPositionSeconds float64  `json:"startPositionSeconds,omitempty" yaml:"startPositionSeconds"`
	Volume               *float64 `json:"volume,omitempty" yaml:"volume"`
	PlaybackRate         float64  `json:"playbackRate,omitempty" yaml:"playbackRate"`
	Loop                 bool     `json:"loop,omitempty" yaml:"loop"`
	Muted                bool     `json:"muted,omitempty" yaml:"muted"`
}

// Entry is one resolved asset before it is given a queue GUID.
// FollowerAssetRef names what the follower of a composite display plays
// alongside AssetRef; empty means the same asset.
type Entry struct {
	AssetRef         string    `json:"assetRef" yaml:"assetRef"`
	FollowerAssetRef string    `json:"followerAssetRef,omitempty" yaml:"followerAssetRef"`
	Overrides        Overrides `json:"overrides" yaml:"overrides"`
}

// Source names what the queue should play: an explicit item list, or a
// playlist or single asset key the backend expands.
type Source struct {
	Items    []Entry
	Playlist string
	Asset    string
	Shuffle  bool
}

// Signature identifies a source. Two sources with the same signature build
// the same queue, so reloading one is a no-op.
func (s Source) Signature() string {
	h := fnv.New64a()
	switch {
	case len(s.Items) > 0:
		refs := lo.Map(s.Items, func(e Entry, _ int) string {
			if e.FollowerAssetRef != "" {
				return e.AssetRef + "+" + e.FollowerAssetRef
			}
			return e.AssetRef
		})
		fmt.Fprintf(h, "items:%s", strings.Join(refs, "\x1f"))
	case s.Playlist != "":
		fmt.Fprintf(h, "playlist:%s", s.Playlist)
	default:
		fmt.Fprintf(h, "asset:%s", s.Asset)
	}
	fmt.Fprintf(h, ":shuffle=%t", s.Shuffle)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Empty reports whether the source names nothing.
func (s Source) Empty() bool {
	return len(s.Items) == 0 && s.Playlist == "" && s.Asset == ""
}

// Resolver expands a source into entries. Metadata fetching lives behind it.
type Resolver interface {
	Resolve(ctx context.Context, src Source) ([]Entry, error)
}

// StaticResolver serves explicit lists as-is and looks playlists up in a map.
type StaticResolver struct {
	Playlists map[string][]Entry
}

// Resolve implements Resolver.
func (r StaticResolver) Resolve(_ context.Context, src Source) ([]Entry, error) {
	switch {
	case len(src.Items) > 0:
		return lo.Filter(src.Items, func(e Entry, _ int) bool { return e.AssetRef != "" }), nil
	case src.Playlist != "":
		entries, ok := r.Playlists[src.Playlist]
		if !ok {
			return nil, fmt.Errorf("%w: playlist %q", ErrNotFound, src.Playlist)
		}
		return append([]Entry(nil), entries...), nil
	case src.Asset != "":
		return []Entry{{AssetRef: src.Asset}}, nil
	default:
		return nil, ErrEmpty
	}
}
