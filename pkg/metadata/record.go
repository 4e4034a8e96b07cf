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

package metadata

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/titles"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/tmdb"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

const maxCast = 10

// upstreamInfo is what the panel info call told us about a title.
type upstreamInfo struct {
	raw        json.RawMessage
	title      string
	year       int
	providerID int64
	episodes   map[string][]types.EpisodeSummary
}

func (r *Resolver) providerRecord(kind types.Kind, upstreamID string, info *upstreamInfo, d *tmdb.Details, match string, score float64, now time.Time) *types.MetadataRecord {
	id := d.ID
	rec := &types.MetadataRecord{
		Kind:         kind,
		UpstreamID:   upstreamID,
		ProviderID:   &id,
		ProviderKind: string(d.MediaType),
		Title:        types.StringPtr(d.DisplayTitle()),
		Original:     types.StringPtr(d.OriginalDisplayTitle()),
		Overview:     types.StringPtr(d.Overview),
		Images: types.Images{
			Poster:   tmdb.ImageURL(d.PosterPath, tmdb.PosterSize),
			Backdrop: tmdb.ImageURL(d.BackdropPath, tmdb.BackdropSize),
		},
		Trailer:    SelectTrailer(d.Videos.Results, r.provider.Language(), r.provider.FallbackLanguage()),
		IMDBID:     d.IMDB(),
		Episodes:   info.episodes,
		Match:      match,
		MatchScore: score,
		Raw:        info.raw,
		CachedAt:   now,
	}
	if rec.Title == nil {
		rec.Title = types.StringPtr(info.title)
	}
	if d.VoteAverage > 0 {
		v := d.VoteAverage
		rec.VoteAverage = &v
	}
	if y := titles.YearFromDate(d.Date()); y > 0 {
		rec.Year = &y
	} else if info.year > 0 {
		y := info.year
		rec.Year = &y
	}
	for _, g := range d.Genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			rec.Genres = append(rec.Genres, name)
		}
	}

	cast := append([]tmdb.CastCredit(nil), d.Credits.Cast...)
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	for _, c := range cast {
		if len(rec.Cast) == maxCast {
			break
		}
		rec.Cast = append(rec.Cast, types.CastMember{
			Name:      c.Name,
			Character: c.Character,
			Profile:   tmdb.ImageURL(c.ProfilePath, tmdb.ProfileSize),
		})
	}
	for _, c := range d.Credits.Crew {
		if strings.EqualFold(c.Job, "Director") && !containsString(rec.Directors, c.Name) {
			rec.Directors = append(rec.Directors, c.Name)
		}
	}
	return rec
}

// upstreamOnlyRecord is shown when no provider match is known. Only
// panel derived fields are set.
func upstreamOnlyRecord(kind types.Kind, upstreamID string, info *upstreamInfo, now time.Time) *types.MetadataRecord {
	title := titles.Normalize(info.title)
	if title == "" {
		title = info.title
	}
	rec := &types.MetadataRecord{
		Kind:       kind,
		UpstreamID: upstreamID,
		Title:      types.StringPtr(title),
		Episodes:   info.episodes,
		Match:      types.MatchUpstreamOnly,
		Raw:        info.raw,
		CachedAt:   now,
	}
	if info.year > 0 {
		y := info.year
		rec.Year = &y
	}
	return rec
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
