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

// Package titles cleans noisy catalog titles and scores them against
// provider titles.
package titles

import (
	"strings"

	"github.com/grafana/regexp"
)

// Language and release tags that may prefix a catalog title. Two letter
// codes are only stripped when followed by a hard delimiter so that titles
// such as "It Follows" survive.
var (
	strongTags = map[string]bool{
		"multi": true, "vostfr": true, "vost": true, "vff": true, "vfq": true, "vfi": true,
		"truefrench": true, "subfrench": true, "4k": true, "uhd": true, "fhd": true, "hd": true,
		"sd": true, "hdr": true, "2160p": true, "1080p": true, "720p": true, "480p": true,
		"hevc": true, "x264": true, "x265": true, "h264": true, "h265": true,
		"nf": true, "amzn": true, "dsnp": true, "atvp": true,
	}
	weakTags = map[string]bool{
		"fr": true, "en": true, "vf": true, "vo": true, "de": true, "es": true, "it": true,
		"pt": true, "ar": true, "nl": true, "tr": true, "pl": true, "ru": true, "uk": true,
		"us": true, "be": true, "ca": true, "ch": true, "qc": true, "french": true,
		"english": true, "arabic": true, "vf2": true,
	}

	leadingBracket = regexp.MustCompile(`^\s*[\[(]([^\])]*)[\])]`)
	tagTokenSplit  = regexp.MustCompile(`[\s|:/\-,+]+`)

	separatorChars = strings.NewReplacer(".", " ", "_", " ", "|", " ", ":", " ", "/", " ")
	looseHyphen    = regexp.MustCompile(`(?:^|\s)-+|-+(?:\s|$)`)
	bracketGroup   = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}`)
	yearToken      = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	seasonEpisode  = regexp.MustCompile(`(?i)\bS\d{1,2}\s*E\d{1,3}\b`)
	releaseTokens  = regexp.MustCompile(`(?i)\b(?:2160p|1080p|720p|480p|4k|uhd|fhd|hd|sd|hdr10|hdr|dolby ?vision|x264|x265|h\.?264|h\.?265|hevc|avc|10bit|bluray|blu-ray|bdrip|brrip|webrip|web-dl|webdl|hdtv|dvdrip|hdrip|remux|multi|vostfr|vost|vff|vfq|vfi|truefrench|subfrench|ac3|aac|dts|atmos|ddp?5\.?1)\b`)
	spaces         = regexp.MustCompile(`\s+`)
)

// Normalize strips language/release tags, bracket groups, years, episode
// markers and quality tokens from a catalog title. Normalize is idempotent.
func Normalize(raw string) string {
	s := raw
	for i := 0; i < 8; i++ {
		next := normalizePass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func normalizePass(s string) string {
	s = stripLeadingTags(s)
	s = separatorChars.Replace(s)
	s = looseHyphen.ReplaceAllString(s, " ")
	s = bracketGroup.ReplaceAllString(s, " ")
	s = yearToken.ReplaceAllString(s, " ")
	s = seasonEpisode.ReplaceAllString(s, " ")
	s = releaseTokens.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func stripLeadingTags(s string) string {
	stripped := false
	for {
		t := s
		if stripped {
			t = strings.TrimLeft(s, " \t|:/-,+")
		}

		if m := leadingBracket.FindStringSubmatch(t); m != nil && isTagList(m[1]) {
			s, stripped = t[len(m[0]):], true
			continue
		}

		end := strings.IndexAny(t, " \t|:/-,+[(")
		if end <= 0 {
			return t
		}
		tok := strings.ToLower(t[:end])
		rest := t[end:]
		switch {
		case strongTags[tok]:
			s, stripped = rest, true
		case weakTags[tok] && hardDelimiterFollows(rest):
			s, stripped = rest, true
		default:
			return t
		}
	}
}

func isTagList(inner string) bool {
	found := false
	for _, tok := range tagTokenSplit.Split(strings.ToLower(inner), -1) {
		if tok == "" {
			continue
		}
		if !strongTags[tok] && !weakTags[tok] {
			return false
		}
		found = true
	}
	return found
}

func hardDelimiterFollows(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '|', ':', '/', '[', '(':
		return true
	case '-':
		return len(rest) > 1 && (rest[1] == ' ' || rest[1] == '\t')
	}
	return false
}
