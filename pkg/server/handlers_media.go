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

package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/streamid"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

// credentials loads the caller's upstream account or answers no-xtream.
func (c *Config) credentials(ctx *gin.Context) (*types.Credentials, bool) {
	creds, err := c.playback.Credentials(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, err)
		return nil, false
	}
	return creds, true
}

func contentRef(ctx *gin.Context) (types.ContentRef, error) {
	kind, err := types.ParseKind(ctx.Param("kind"))
	if err != nil {
		return types.ContentRef{}, err
	}
	id := ctx.Param("id")
	if id == "" {
		return types.ContentRef{}, fmt.Errorf("%w: missing id", types.ErrBadRequest)
	}
	return types.ContentRef{Kind: kind, UpstreamID: id}, nil
}

// manifestHandler serves GET /media/:kind/:id/hls.m3u8.
func (c *Config) manifestHandler(ctx *gin.Context) {
	ref, err := contentRef(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	creds, ok := c.credentials(ctx)
	if !ok {
		return
	}
	c.serveManifest(ctx, creds, ref)
}

// fileHandler serves GET /media/:kind/:id/file.
func (c *Config) fileHandler(ctx *gin.Context) {
	ref, err := contentRef(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	creds, ok := c.credentials(ctx)
	if !ok {
		return
	}
	c.serveFile(ctx, creds, ref)
}

func (c *Config) serveManifest(ctx *gin.Context, creds *types.Credentials, ref types.ContentRef) {
	res, err := c.playback.Manifest(ctx.Request.Context(), creds, ref, c.proxyURLFunc(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	writePlaylist(ctx, res)
}

func (c *Config) serveFile(ctx *gin.Context, creds *types.Credentials, ref types.ContentRef) {
	target, err := c.playback.FileSource(ctx.Request.Context(), creds, ref)
	if err != nil {
		respondError(ctx, err)
		return
	}
	c.stream(ctx, target, true)
}

// episodeRef reads /media/series/:id/season/:season/episode/:episode.
func episodeRef(ctx *gin.Context) (types.EpisodeRef, error) {
	if ctx.Param("kind") != string(types.KindSeries) {
		return types.EpisodeRef{}, fmt.Errorf("%w: episodes belong to series", types.ErrBadRequest)
	}
	season, err := strconv.Atoi(ctx.Param("season"))
	if err != nil || season < 0 {
		return types.EpisodeRef{}, fmt.Errorf("%w: invalid season %q", types.ErrBadRequest, ctx.Param("season"))
	}
	episode, err := strconv.Atoi(ctx.Param("episode"))
	if err != nil || episode < 1 {
		return types.EpisodeRef{}, fmt.Errorf("%w: invalid episode %q", types.ErrBadRequest, ctx.Param("episode"))
	}
	return types.EpisodeRef{SeriesID: ctx.Param("id"), Season: season, Episode: episode}, nil
}

// episodeHandler resolves an episode then serves its manifest or file.
func (c *Config) episodeHandler(file bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ep, err := episodeRef(ctx)
		if err != nil {
			respondError(ctx, err)
			return
		}
		creds, ok := c.credentials(ctx)
		if !ok {
			return
		}
		ref, err := c.streams.ResolveEpisode(ctx.Request.Context(), creds, ep)
		if err != nil {
			respondError(ctx, err)
			return
		}
		if file {
			c.serveFile(ctx, creds, ref)
			return
		}
		c.serveManifest(ctx, creds, ref)
	}
}

// providerHandler resolves a TMDB movie id then serves its manifest or file.
func (c *Config) providerHandler(file bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		providerID, err := streamid.ParseProviderID(ctx.Param("providerId"))
		if err != nil {
			respondError(ctx, err)
			return
		}
		creds, ok := c.credentials(ctx)
		if !ok {
			return
		}
		ref, err := c.streams.ResolveByProviderID(ctx.Request.Context(), creds, types.KindMovie, providerID)
		if err != nil {
			respondError(ctx, err)
			return
		}
		if file {
			c.serveFile(ctx, creds, ref)
			return
		}
		c.serveManifest(ctx, creds, ref)
	}
}

// metadataHandler serves GET /media/:kind/:id, ?refresh=1 bypasses the cache.
func (c *Config) metadataHandler(ctx *gin.Context) {
	ref, err := contentRef(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if ref.Kind != types.KindMovie && ref.Kind != types.KindSeries {
		respondError(ctx, fmt.Errorf("%w: no metadata for %s", types.ErrBadRequest, ref.Kind))
		return
	}
	creds, ok := c.credentials(ctx)
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(ctx.Query("refresh"))
	rec, err := c.metadata.Resolve(ctx.Request.Context(), creds, ref.Kind, ref.UpstreamID, refresh)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "private, max-age=60")
	ctx.JSON(http.StatusOK, rec)
}
