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
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// Stable error codes returned to clients.
const (
	codeNotLinked      = "no-xtream"
	codeNoSource       = "no-src"
	codeNoManifest     = "no-hls"
	codeUpstream       = "upstream"
	codeForbiddenHost  = "forbidden-host"
	codeEpisode        = "episode-not-found"
	codeStreamNotFound = "stream-not-found"
	codeBadRequest     = "bad-request"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal"
)

// errorStatus maps an error to its HTTP status, code and client message.
// Upstream details stay in the logs.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized, "authentication required"
	case errors.Is(err, types.ErrNotLinked):
		return http.StatusNotFound, codeNotLinked, "no upstream account linked"
	case errors.Is(err, types.ErrForbiddenHost):
		return http.StatusBadRequest, codeForbiddenHost, "url is not on the linked upstream"
	case errors.Is(err, types.ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest, err.Error()
	case errors.Is(err, types.ErrNoManifest):
		return http.StatusNotFound, codeNoManifest, "no playable HLS manifest found"
	case errors.Is(err, types.ErrUpstreamUnreachable):
		return http.StatusNotFound, codeNoSource, "no playable source found"
	case errors.Is(err, types.ErrEpisodeNotFound):
		return http.StatusNotFound, codeEpisode, "episode not found"
	case errors.Is(err, types.ErrStreamIDNotFound):
		return http.StatusNotFound, codeStreamNotFound, "no upstream stream for this title"
	case types.IsUpstreamError(err):
		return http.StatusBadGateway, codeUpstream, "upstream request failed"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}

// respondError aborts with a JSON error body. Client cancellations are
// dropped silently.
func respondError(ctx *gin.Context, err error) {
	if errors.Is(err, context.Canceled) && ctx.Request.Context().Err() != nil {
		ctx.Abort()
		return
	}
	status, code, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		utils.ErrorLog("%s %s: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
	} else {
		utils.DebugLog("%s %s: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
	}
	ctx.AbortWithStatusJSON(status, types.APIResponse{Success: false, Error: code, Message: msg})
}

// setNoStoreHeaders disables caching and intermediary buffering.
func setNoStoreHeaders(ctx *gin.Context) {
	ctx.Header("Cache-Control", "no-store")
	ctx.Header("Pragma", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
}

// isPlaylistContentType reports whether a Content-Type names an HLS playlist.
func isPlaylistContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(ct))
	}
	switch mt {
	case "application/vnd.apple.mpegurl", "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl":
		return true
	}
	return false
}

const requestIDHeader = "X-Request-ID"

// requestID echoes the caller's X-Request-ID or assigns a new one.
func requestID(ctx *gin.Context) {
	id := ctx.GetHeader(requestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	ctx.Set("request_id", id)
	ctx.Header(requestIDHeader, id)
	ctx.Next()
}
