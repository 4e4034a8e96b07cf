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
	"fmt"
	"strings"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/tmdb"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

// SelectTrailer picks the best video: trailers over teasers over clips,
// official uploads and the preferred languages first. Ties keep provider
// order. primary and secondary are language tags such as "fr-FR".
func SelectTrailer(videos []tmdb.Video, primary, secondary string) *types.Trailer {
	primary, secondary = tmdb.LanguageCode(primary), tmdb.LanguageCode(secondary)

	best, bestScore := -1, -1
	for i := range videos {
		if strings.TrimSpace(videos[i].Key) == "" {
			continue
		}
		if s := scoreTrailer(&videos[i], primary, secondary); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return nil
	}

	v := videos[best]
	t := &types.Trailer{
		Name:     strings.TrimSpace(v.Name),
		Site:     strings.TrimSpace(v.Site),
		Key:      strings.TrimSpace(v.Key),
		Type:     strings.TrimSpace(v.Type),
		Language: strings.TrimSpace(v.Language),
		Official: v.Official,
	}
	switch strings.ToLower(t.Site) {
	case "youtube":
		t.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%s", t.Key)
	case "vimeo":
		t.URL = fmt.Sprintf("https://vimeo.com/%s", t.Key)
	default:
		t.URL = t.Key
	}
	return t
}

func scoreTrailer(v *tmdb.Video, primary, secondary string) int {
	score := 0
	switch strings.ToLower(strings.TrimSpace(v.Type)) {
	case "trailer":
		score += 400
	case "teaser":
		score += 300
	case "clip":
		score += 200
	default:
		score += 100
	}
	if v.Official {
		score += 25
	}
	lang := strings.ToLower(strings.TrimSpace(v.Language))
	switch {
	case lang != "" && lang == primary:
		score += 15
	case lang != "" && lang == secondary:
		score += 8
	}
	if strings.EqualFold(v.Site, "youtube") {
		score += 5
	}
	return score
}
