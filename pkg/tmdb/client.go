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

// Package tmdb is the subset of the TMDB v3 API the metadata resolver needs.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/ratelimit"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	ImageBaseURL   = "https://image.tmdb.org/t/p"
	PosterSize     = "w500"
	BackdropSize   = "w1280"
	ProfileSize    = "w185"
)

// MediaType is a TMDB media family.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

var (
	// ErrNotConfigured is returned by every call when no API key is set.
	ErrNotConfigured = fmt.Errorf("%w: tmdb api key not configured", types.ErrProviderUnavailable)
	// ErrNotFound is a 404 from TMDB.
	ErrNotFound = errors.New("tmdb: not found")
)

// Options configures a Client.
type Options struct {
	APIKey           string
	BaseURL          string
	Language         string
	FallbackLanguage string
	RequestsPerSec   int
	// Retries is the number of extra attempts on 429 and 5xx answers.
	Retries uint
	Timeout time.Duration
}

// Client calls TMDB with a shared rate limit.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	fallback string
	httpc    *http.Client
	limiter  ratelimit.Limiter
	retries  uint
	timeout  time.Duration
}

// New creates a Client. A nil httpc uses http.DefaultClient.
func New(httpc *http.Client, opts Options) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	limiter := ratelimit.NewUnlimited()
	if opts.RequestsPerSec > 0 {
		limiter = ratelimit.New(opts.RequestsPerSec)
	}
	return &Client{
		apiKey:   strings.TrimSpace(opts.APIKey),
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: normalizeLanguage(opts.Language),
		fallback: normalizeLanguage(opts.FallbackLanguage),
		httpc:    httpc,
		limiter:  limiter,
		retries:  opts.Retries,
		timeout:  opts.Timeout,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Language is the primary metadata language, such as "fr-FR".
func (c *Client) Language() string { return c.language }

// FallbackLanguage is used when the primary language has no overview.
func (c *Client) FallbackLanguage() string { return c.fallback }

// SearchResult is one entry of a search answer.
type SearchResult struct {
	ID            int64     `json:"id"`
	MediaType     MediaType `json:"media_type"`
	Title         string    `json:"title"`
	Name          string    `json:"name"`
	OriginalTitle string    `json:"original_title"`
	OriginalName  string    `json:"original_name"`
	ReleaseDate   string    `json:"release_date"`
	FirstAirDate  string    `json:"first_air_date"`
	Overview      string    `json:"overview"`
	PosterPath    string    `json:"poster_path"`
	BackdropPath  string    `json:"backdrop_path"`
	Popularity    float64   `json:"popularity"`
	VoteAverage   float64   `json:"vote_average"`
}

// DisplayTitle is the localized title of a movie or name of a show.
func (r SearchResult) DisplayTitle() string {
	return firstNonEmpty(r.Title, r.Name)
}

// OriginalDisplayTitle is the original language title.
func (r SearchResult) OriginalDisplayTitle() string {
	return firstNonEmpty(r.OriginalTitle, r.OriginalName)
}

// Date is the release or first air date.
func (r SearchResult) Date() string {
	return firstNonEmpty(r.ReleaseDate, r.FirstAirDate)
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchMovie runs /search/movie. year is omitted when zero.
func (c *Client) SearchMovie(ctx context.Context, query string, year int) ([]SearchResult, error) {
	q := url.Values{}
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	return c.search(ctx, "movie", query, q, MediaMovie)
}

// SearchTV runs /search/tv. year filters on the first air date.
func (c *Client) SearchTV(ctx context.Context, query string, year int) ([]SearchResult, error) {
	q := url.Values{}
	if year > 0 {
		q.Set("first_air_date_year", strconv.Itoa(year))
	}
	return c.search(ctx, "tv", query, q, MediaTV)
}

// SearchMulti runs /search/multi. Results keep their own media_type.
func (c *Client) SearchMulti(ctx context.Context, query string) ([]SearchResult, error) {
	return c.search(ctx, "multi", query, url.Values{}, "")
}

func (c *Client) search(ctx context.Context, endpoint, query string, q url.Values, media MediaType) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	q.Set("query", query)
	q.Set("include_adult", "false")
	q.Set("language", c.language)

	var payload searchResponse
	if err := c.doGET(ctx, "search/"+endpoint, q, &payload); err != nil {
		return nil, err
	}
	if media != "" {
		for i := range payload.Results {
			payload.Results[i].MediaType = media
		}
	}
	return payload.Results, nil
}

// Genre is a TMDB genre.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Video is an entry of the videos sub-resource.
type Video struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Site        string `json:"site"`
	Type        string `json:"type"`
	Official    bool   `json:"official"`
	Language    string `json:"iso_639_1"`
	PublishedAt string `json:"published_at"`
}

// CastCredit is one actor of the credits sub-resource.
type CastCredit struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

// CrewCredit is one crew member of the credits sub-resource.
type CrewCredit struct {
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}

// Details is a movie or show with its videos, credits and external ids.
type Details struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	Overview      string  `json:"overview"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	VoteAverage   float64 `json:"vote_average"`
	PosterPath    string  `json:"poster_path"`
	BackdropPath  string  `json:"backdrop_path"`
	Genres        []Genre `json:"genres"`
	IMDBID        string  `json:"imdb_id"`
	Videos        struct {
		Results []Video `json:"results"`
	} `json:"videos"`
	Credits struct {
		Cast []CastCredit `json:"cast"`
		Crew []CrewCredit `json:"crew"`
	} `json:"credits"`
	ExternalIDs struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`

	MediaType MediaType `json:"-"`
}

// DisplayTitle is the localized title of a movie or name of a show.
func (d *Details) DisplayTitle() string {
	return firstNonEmpty(d.Title, d.Name)
}

// OriginalDisplayTitle is the original language title.
func (d *Details) OriginalDisplayTitle() string {
	return firstNonEmpty(d.OriginalTitle, d.OriginalName)
}

// Date is the release or first air date.
func (d *Details) Date() string {
	return firstNonEmpty(d.ReleaseDate, d.FirstAirDate)
}

// IMDB returns the IMDb id from the details or the external ids.
func (d *Details) IMDB() string {
	return firstNonEmpty(d.IMDBID, d.ExternalIDs.IMDBID)
}

// Details fetches a title in the primary language with its sub-resources.
// A missing overview is filled from the fallback language.
func (c *Client) Details(ctx context.Context, media MediaType, id int64) (*Details, error) {
	if media != MediaMovie && media != MediaTV {
		return nil, fmt.Errorf("tmdb: unsupported media type %q", media)
	}
	q := url.Values{}
	q.Set("language", c.language)
	q.Set("append_to_response", "videos,credits,external_ids")
	q.Set("include_video_language", videoLanguages(c.language, c.fallback))

	endpoint := path.Join(string(media), strconv.FormatInt(id, 10))
	var d Details
	if err := c.doGET(ctx, endpoint, q, &d); err != nil {
		return nil, err
	}
	d.MediaType = media

	if strings.TrimSpace(d.Overview) == "" && c.fallback != "" && c.fallback != c.language {
		var fb Details
		fq := url.Values{}
		fq.Set("language", c.fallback)
		if err := c.doGET(ctx, endpoint, fq, &fb); err != nil {
			utils.DebugLog("TMDB fallback language lookup failed for %s/%d: %v", media, id, err)
		} else {
			d.Overview = fb.Overview
			if d.DisplayTitle() == "" {
				d.Title, d.Name = fb.Title, fb.Name
			}
		}
	}
	return &d, nil
}

// ImageURL builds an image URL, or "" for an empty path.
func ImageURL(imagePath, size string) string {
	trimmed := strings.TrimSpace(imagePath)
	if trimmed == "" {
		return ""
	}
	return ImageBaseURL + "/" + size + "/" + strings.TrimPrefix(trimmed, "/")
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tmdb request failed: status %d", e.status)
}

// doGET performs one rate limited GET, retrying 429 and 5xx answers.
func (c *Client) doGET(ctx context.Context, endpoint string, q url.Values, v any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	q.Set("api_key", c.apiKey)
	target := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/") + "?" + q.Encode()

	err := retry.Do(
		func() error { return c.attempt(ctx, target, v) },
		retry.Context(ctx),
		retry.Attempts(c.retries+1),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *statusError
			return retry.IsRecoverable(err) && errors.As(err, &se)
		}),
		retry.OnRetry(func(n uint, err error) {
			utils.WarnLog("TMDB %s retry %d: %v", endpoint, n+1, err)
		}),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", types.ErrProviderUnavailable, endpoint, err)
	}
}

func (c *Client) attempt(ctx context.Context, target string, v any) error {
	c.limiter.Take()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return retry.Unrecoverable(errors.New(strings.ReplaceAll(err.Error(), c.apiKey, "***")))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Unrecoverable(ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return retry.Unrecoverable(&statusError{status: resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode tmdb response: %w", err))
	}
	return nil
}

func normalizeLanguage(lang string) string {
	lang = strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	switch {
	case lang == "":
		return ""
	case len(lang) == 2:
		return strings.ToLower(lang)
	case len(lang) >= 5:
		return strings.ToLower(lang[:2]) + "-" + strings.ToUpper(lang[3:])
	}
	return lang
}

// LanguageCode returns the ISO 639-1 part of a language tag.
func LanguageCode(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

func videoLanguages(primary, fallback string) string {
	codes := []string{}
	for _, l := range []string{primary, fallback} {
		if code := LanguageCode(l); code != "" && !contains(codes, code) {
			codes = append(codes, code)
		}
	}
	return strings.Join(append(codes, "null"), ",")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
