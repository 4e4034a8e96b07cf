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

// Package metadata matches upstream catalog entries against the metadata
// provider and caches the result.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/metrics"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/titles"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/tmdb"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/xtream"
)

// Minimum scores for accepting a fuzzy match.
const (
	MovieThreshold  = 0.2
	SeriesThreshold = 0.1

	resultsPerQuery = 10
	searchWorkers   = 4
)

// Provider is the metadata provider subset the resolver uses.
type Provider interface {
	Configured() bool
	Language() string
	FallbackLanguage() string
	SearchMovie(ctx context.Context, query string, year int) ([]tmdb.SearchResult, error)
	SearchTV(ctx context.Context, query string, year int) ([]tmdb.SearchResult, error)
	SearchMulti(ctx context.Context, query string) ([]tmdb.SearchResult, error)
	Details(ctx context.Context, media tmdb.MediaType, id int64) (*tmdb.Details, error)
}

// Upstream returns the raw panel info payload of a title.
type Upstream interface {
	Info(ctx context.Context, creds *types.Credentials, kind types.Kind, id string) ([]byte, error)
}

// Cache is the metadata cache. Get misses on stale rows, GetStale does not.
type Cache interface {
	Get(ctx context.Context, kind types.Kind, upstreamID string) (*types.MetadataRecord, error)
	GetStale(ctx context.Context, kind types.Kind, upstreamID string) (*types.MetadataRecord, error)
	Put(ctx context.Context, rec *types.MetadataRecord) error
}

// Resolver resolves (kind, upstream id) to a MetadataRecord. Concurrent
// requests for the same key share one resolution.
type Resolver struct {
	provider Provider
	upstream Upstream
	cache    Cache
	group    singleflight.Group
	now      func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(provider Provider, upstream Upstream, cache Cache) *Resolver {
	return &Resolver{provider: provider, upstream: upstream, cache: cache, now: time.Now}
}

// Resolve returns the metadata of a movie or series. refresh skips the
// cache lookup. Provider and panel failures never fail the call: the stale
// cached record, or else an upstream-only record, is returned instead.
func (r *Resolver) Resolve(ctx context.Context, creds *types.Credentials, kind types.Kind, upstreamID string, refresh bool) (*types.MetadataRecord, error) {
	if kind != types.KindMovie && kind != types.KindSeries {
		return nil, fmt.Errorf("%w: no metadata for kind %q", types.ErrBadRequest, kind)
	}
	upstreamID = strings.TrimSpace(upstreamID)
	if upstreamID == "" {
		return nil, fmt.Errorf("%w: missing id", types.ErrBadRequest)
	}

	key := string(kind) + ":" + upstreamID
	if refresh {
		key += ":refresh"
	}
	// The shared resolution outlives a caller that goes away.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), creds, kind, upstreamID, refresh)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			utils.DebugLog("Metadata %s shared an in-flight resolution", key)
		}
		return res.Val.(*types.MetadataRecord), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, creds *types.Credentials, kind types.Kind, upstreamID string, refresh bool) (*types.MetadataRecord, error) {
	if !refresh {
		if rec, err := r.cache.Get(ctx, kind, upstreamID); err == nil {
			r.count(kind, "cache")
			return rec, nil
		}
	}

	info, err := r.fetchInfo(ctx, creds, kind, upstreamID)
	now := r.now()

	if info.providerID > 0 {
		rec, err := r.fromProvider(ctx, kind, upstreamID, info, mediaFor(kind), info.providerID, types.MatchProviderID, 1, now)
		if err != nil {
			return r.degrade(ctx, kind, upstreamID, info, now, err), nil
		}
		return r.persist(ctx, rec, "provider-id"), nil
	}
	if err != nil {
		return r.degrade(ctx, kind, upstreamID, info, now, err), nil
	}
	if !r.provider.Configured() {
		return r.degrade(ctx, kind, upstreamID, info, now, tmdb.ErrNotConfigured), nil
	}

	best, searchErr := r.search(ctx, kind, info)
	if best != nil && best.score > threshold(kind) {
		utils.DebugLog("Metadata %s/%s matched %q (%s/%d) with score %.2f", kind, upstreamID, best.title, best.media, best.id, best.score)
		rec, err := r.fromProvider(ctx, kind, upstreamID, info, best.media, best.id, types.MatchFuzzy, best.score, now)
		if err != nil {
			return r.degrade(ctx, kind, upstreamID, info, now, err), nil
		}
		return r.persist(ctx, rec, "matched"), nil
	}
	if searchErr != nil {
		return r.degrade(ctx, kind, upstreamID, info, now, searchErr), nil
	}

	utils.DebugLog("Metadata %s/%s: no confident match for %q", kind, upstreamID, info.title)
	return r.persist(ctx, upstreamOnlyRecord(kind, upstreamID, info, now), types.MatchUpstreamOnly), nil
}

func (r *Resolver) fetchInfo(ctx context.Context, creds *types.Credentials, kind types.Kind, upstreamID string) (*upstreamInfo, error) {
	info := &upstreamInfo{}
	if creds == nil {
		return info, types.ErrNotLinked
	}
	raw, err := r.upstream.Info(ctx, creds, kind, upstreamID)
	if err != nil {
		return info, fmt.Errorf("upstream info %s/%s: %w", kind, upstreamID, err)
	}

	info.raw = json.RawMessage(raw)
	info.title, _ = xtream.FirstString(raw, xtream.TitleFields...)
	info.year = xtream.FirstYear(raw, xtream.YearFields...)
	if info.year == 0 {
		info.year = titles.ExtractYear(info.title)
	}
	info.providerID, _ = xtream.FirstInt(raw, xtream.ProviderIDFields...)
	if kind == types.KindSeries {
		if seasons, err := xtream.ParseEpisodes(raw); err == nil {
			info.episodes = xtream.EpisodeSummaries(seasons)
		}
	}
	return info, nil
}

func (r *Resolver) fromProvider(ctx context.Context, kind types.Kind, upstreamID string, info *upstreamInfo, media tmdb.MediaType, providerID int64, match string, score float64, now time.Time) (*types.MetadataRecord, error) {
	if !r.provider.Configured() {
		return nil, tmdb.ErrNotConfigured
	}
	d, err := r.provider.Details(ctx, media, providerID)
	if err != nil {
		return nil, fmt.Errorf("provider details %s/%d: %w", media, providerID, err)
	}
	if d.MediaType == "" {
		d.MediaType = media
	}
	return r.providerRecord(kind, upstreamID, info, d, match, score, now), nil
}

// degrade serves the stale cached record, or an upstream-only record that
// is not persisted so the next request tries again.
func (r *Resolver) degrade(ctx context.Context, kind types.Kind, upstreamID string, info *upstreamInfo, now time.Time, cause error) *types.MetadataRecord {
	utils.WarnLog("Metadata %s/%s falls back: %v", kind, upstreamID, cause)
	if stale, err := r.cache.GetStale(ctx, kind, upstreamID); err == nil {
		r.count(kind, "stale")
		return stale
	}
	r.count(kind, types.MatchUpstreamOnly)
	return upstreamOnlyRecord(kind, upstreamID, info, now)
}

func (r *Resolver) persist(ctx context.Context, rec *types.MetadataRecord, decision string) *types.MetadataRecord {
	if err := r.cache.Put(ctx, rec); err != nil {
		utils.ErrorLog("Failed to cache metadata %s/%s: %v", rec.Kind, rec.UpstreamID, err)
	}
	r.count(rec.Kind, decision)
	return rec
}

func (r *Resolver) count(kind types.Kind, decision string) {
	metrics.ResolverDecisions.WithLabelValues(string(kind), decision).Inc()
}

type candidate struct {
	id    int64
	media tmdb.MediaType
	title string
	score float64
}

type searchFunc func(ctx context.Context, query string) ([]tmdb.SearchResult, error)

// search scores provider results for every query variant. Series whose
// best TV result is weak get a second, multi-type pass.
func (r *Resolver) search(ctx context.Context, kind types.Kind, info *upstreamInfo) (*candidate, error) {
	queries := Queries(kind, info.title)
	if len(queries) == 0 {
		return nil, nil
	}

	typed := func(ctx context.Context, q string) ([]tmdb.SearchResult, error) {
		if kind == types.KindSeries {
			return r.provider.SearchTV(ctx, q, 0)
		}
		return r.provider.SearchMovie(ctx, q, 0)
	}
	best, err := searchPass(ctx, queries, info.year, typed)
	if kind != types.KindSeries || (best != nil && best.score > SeriesThreshold) {
		return best, err
	}

	multi := func(ctx context.Context, q string) ([]tmdb.SearchResult, error) {
		res, err := r.provider.SearchMulti(ctx, q)
		if err != nil {
			return nil, err
		}
		kept := res[:0]
		for _, item := range res {
			if item.MediaType == tmdb.MediaTV || item.MediaType == tmdb.MediaMovie {
				kept = append(kept, item)
			}
		}
		return kept, nil
	}
	wide, wideErr := searchPass(ctx, queries, info.year, multi)
	if wide != nil && (best == nil || wide.score > best.score) {
		best = wide
	}
	if err == nil {
		err = wideErr
	}
	return best, err
}

// searchPass runs one search per query. It reports an error only when
// every query failed.
func searchPass(ctx context.Context, queries []string, hintYear int, search searchFunc) (*candidate, error) {
	found := make([]*candidate, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(searchWorkers)
	for i, q := range queries {
		g.Go(func() error {
			res, err := search(ctx, q)
			if err != nil {
				errs[i] = err
				return nil
			}
			found[i] = bestOf(q, hintYear, res)
			return nil
		})
	}
	g.Wait()

	var best *candidate
	for _, c := range found {
		if c != nil && (best == nil || c.score > best.score) {
			best = c
		}
	}
	for _, err := range errs {
		if err == nil {
			return best, nil
		}
	}
	return best, errs[0]
}

// bestOf scores the top results of one query against both the localized
// and the original title.
func bestOf(query string, hintYear int, results []tmdb.SearchResult) *candidate {
	if len(results) > resultsPerQuery {
		results = results[:resultsPerQuery]
	}
	scorer := titles.NewScorer(query, hintYear)
	var best *candidate
	for _, res := range results {
		year := titles.YearFromDate(res.Date())
		score := scorer.Score(res.DisplayTitle(), year)
		if orig := res.OriginalDisplayTitle(); orig != "" {
			score = max(score, scorer.Score(orig, year))
		}
		if best == nil || score > best.score {
			best = &candidate{id: res.ID, media: res.MediaType, title: res.DisplayTitle(), score: score}
		}
	}
	return best
}

// Queries lists the distinct search strings for a raw upstream title: the
// title itself, its normalized form and, for series, the part after the
// last separator.
func Queries(kind types.Kind, raw string) []string {
	variants := []string{raw, titles.Normalize(raw)}
	if kind == types.KindSeries {
		if tail := titles.SeriesTail(raw); tail != "" {
			variants = append(variants, tail, titles.Normalize(tail))
		}
	}

	seen := make(map[string]bool, len(variants))
	var out []string
	for _, v := range variants {
		v = strings.TrimSpace(v)
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func threshold(kind types.Kind) float64 {
	if kind == types.KindSeries {
		return SeriesThreshold
	}
	return MovieThreshold
}

func mediaFor(kind types.Kind) tmdb.MediaType {
	if kind == types.KindSeries {
		return tmdb.MediaTV
	}
	return tmdb.MediaMovie
}
