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
	"github.com/gin-gonic/gin"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/metrics"
)

func (c *Config) routes(r *gin.Engine) {
	r.GET("/healthz", c.healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	media := r.Group("/media", c.authenticate)

	media.GET("/proxy", c.proxyHandler)
	media.GET("/hls", c.hlsProxyHandler)

	media.GET("/tmdb/:providerId/hls.m3u8", c.providerHandler(false))
	media.GET("/tmdb/:providerId/file", c.providerHandler(true))

	media.GET("/:kind/:id", c.metadataHandler)
	media.GET("/:kind/:id/hls.m3u8", c.manifestHandler)
	media.GET("/:kind/:id/file", c.fileHandler)
	media.GET("/:kind/:id/season/:season/episode/:episode/hls.m3u8", c.episodeHandler(false))
	media.GET("/:kind/:id/season/:season/episode/:episode/file", c.episodeHandler(true))
}
