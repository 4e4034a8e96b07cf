/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package streamid maps catalog level identifiers to upstream stream ids.
package streamid

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/metrics"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/titles"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/tmdb"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/xtream"
)

const (
	// TopCandidates bounds the catalog entries examined per lookup.
	TopCandidates = 25
	// MinProbeScore is the lowest title score accepted on reachability alone.
	MinProbeScore = 0.20

	infoWorkers = 5
)

// Upstream is the panel API subset used for resolution.
type Upstream interface {
	VODInfo(ctx context.Context, creds *types.Credentials, id string) ([]byte, error)
	SeriesInfo(ctx context.Context, creds *types.Credentials, id string) ([]byte, error)
	Catalog(ctx context.Context, creds *types.Credentials, kind types.Kind) ([]xtream.CatalogEntry, error)
}

// Provider fetches metadata provider details.
type Provider interface {
	Configured() bool
	Details(ctx context.Context, media tmdb.MediaType, id int64) (*tmdb.Details, error)
}

// Prober finds the first reachable URL.
type Prober interface {
	FirstReachable(ctx context.Context, urls []string) (string, bool)
}

// Resolver resolves episodes and provider ids to stream ids.
type Resolver struct {
	upstream Upstream
	provider Provider
	prober   Prober
}

// NewResolver creates a Resolver.
func NewResolver(upstream Upstream, provider Provider, prober Prober) *Resolver {
	return &Resolver{upstream: upstream, provider: provider, prober: prober}
}

// ResolveEpisode returns the stream of one episode of a series.
func (r *Resolver) ResolveEpisode(ctx context.Context, creds *types.Credentials, ref types.EpisodeRef) (types.ContentRef, error) {
	data, err := r.upstream.SeriesInfo(ctx, creds, ref.SeriesID)
	if err != nil {
		metrics.StreamIDResolutions.WithLabelValues("episode", "error").Inc()
		return types.ContentRef{}, err
	}
	ep, err := xtream.FindEpisode(data, ref.Season, ref.Episode)
	if err != nil {
		metrics.StreamIDResolutions.WithLabelValues("episode", "not-found").Inc()
		return types.ContentRef{}, err
	}
	metrics.StreamIDResolutions.WithLabelValues("episode", "ok").Inc()
	return types.ContentRef{Kind: types.KindSeries, UpstreamID: ep.StreamID, Extension: ep.Extension}, nil
}

type ranked struct {
	entry xtream.CatalogEntry
	score float64
	// providerID is what the panel says about the entry, 0 when unknown.
	providerID int64
}

// ResolveByProviderID finds the catalog entry of a provider id. A panel
// provided id equal to the target wins; otherwise the best scored entry
// whose stream is reachable is taken. Series are matched on ids only since
// a series id is not playable.
func (r *Resolver) ResolveByProviderID(ctx context.Context, creds *types.Credentials, kind types.Kind, providerID int64) (types.ContentRef, error) {
	if kind != types.KindMovie && kind != types.KindSeries {
		return types.ContentRef{}, fmt.Errorf("%w: kind %q", types.ErrBadRequest, kind)
	}

	catalog, err := r.upstream.Catalog(ctx, creds, kind)
	if err != nil {
		r.count("error")
		return types.ContentRef{}, err
	}
	for _, e := range catalog {
		if e.ProviderID == providerID {
			utils.DebugLog("Provider id %d found in the %s listing as %s", providerID, kind, e.StreamID)
			r.count("catalog")
			return contentRef(kind, e), nil
		}
	}

	if r.provider == nil || !r.provider.Configured() {
		r.count("not-found")
		return types.ContentRef{}, fmt.Errorf("%w: provider %d (no metadata provider)", types.ErrStreamIDNotFound, providerID)
	}
	media := tmdb.MediaMovie
	if kind == types.KindSeries {
		media = tmdb.MediaTV
	}
	details, err := r.provider.Details(ctx, media, providerID)
	if err != nil {
		r.count("error")
		return types.ContentRef{}, fmt.Errorf("%w: provider %d: %v", types.ErrStreamIDNotFound, providerID, err)
	}

	top := rank(catalog, details)
	if len(top) > TopCandidates {
		top = top[:TopCandidates]
	}

	if ref, ok := r.matchByInfo(ctx, creds, kind, providerID, top); ok {
		r.count("info")
		return ref, nil
	}

	if kind == types.KindMovie && r.prober != nil {
		for _, c := range top {
			if c.score < MinProbeScore {
				break
			}
			if c.providerID != 0 && c.providerID != providerID {
				continue
			}
			urls := xtream.CandidateURLs(kind, c.entry.StreamID, creds, c.entry.Extension)
			if _, ok := r.prober.FirstReachable(ctx, urls); ok {
				utils.DebugLog("Provider id %d matched %q (score %.2f) by reachability", providerID, c.entry.Name, c.score)
				r.count("probe")
				return contentRef(kind, c.entry), nil
			}
		}
	}

	r.count("not-found")
	return types.ContentRef{}, fmt.Errorf("%w: provider %d", types.ErrStreamIDNotFound, providerID)
}

// matchByInfo asks the panel for the provider id of each candidate without
// one and returns the best ranked exact match.
func (r *Resolver) matchByInfo(ctx context.Context, creds *types.Credentials, kind types.Kind, providerID int64, top []ranked) (types.ContentRef, bool) {
	var g errgroup.Group
	g.SetLimit(infoWorkers)
	for i := range top {
		if top[i].providerID != 0 {
			continue
		}
		g.Go(func() error {
			var data []byte
			var err error
			if kind == types.KindSeries {
				data, err = r.upstream.SeriesInfo(ctx, creds, top[i].entry.StreamID)
			} else {
				data, err = r.upstream.VODInfo(ctx, creds, top[i].entry.StreamID)
			}
			if err != nil {
				utils.DebugLog("Info lookup for %s failed: %v", top[i].entry.StreamID, err)
				return nil
			}
			if id, ok := xtream.FirstInt(data, xtream.ProviderIDFields...); ok {
				top[i].providerID = id
			}
			return nil
		})
	}
	g.Wait()

	for _, c := range top {
		if c.providerID == providerID {
			return contentRef(kind, c.entry), true
		}
	}
	return types.ContentRef{}, false
}

// rank scores every catalog entry against the localized and original
// titles of details, best first. Equal scores keep catalog order.
func rank(catalog []xtream.CatalogEntry, details *tmdb.Details) []ranked {
	year := titles.YearFromDate(details.Date())
	var scorers []*titles.Scorer
	for _, name := range []string{details.DisplayTitle(), details.OriginalDisplayTitle()} {
		if name != "" {
			scorers = append(scorers, titles.NewScorer(name, year))
		}
	}

	out := make([]ranked, 0, len(catalog))
	for _, e := range catalog {
		best := 0.0
		for i, s := range scorers {
			if score := s.Score(e.Name, e.Year); i == 0 || score > best {
				best = score
			}
		}
		out = append(out, ranked{entry: e, score: best, providerID: e.ProviderID})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func contentRef(kind types.Kind, e xtream.CatalogEntry) types.ContentRef {
	return types.ContentRef{Kind: kind, UpstreamID: e.StreamID, Extension: e.Extension}
}

func (r *Resolver) count(outcome string) {
	metrics.StreamIDResolutions.WithLabelValues("provider-id", outcome).Inc()
}

// ParseProviderID reads a positive provider id from a route parameter.
func ParseProviderID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid provider id %q", types.ErrBadRequest, s)
	}
	return id, nil
}
