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

// Package metrics holds the Prometheus collectors of the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "novastream"

var (
	// ProbeResults counts reachability attempts by method and outcome.
	ProbeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_attempts_total",
		Help:      "Upstream reachability probes by method and outcome.",
	}, []string{"method", "outcome"})

	// ManifestRewrites counts manifest rewrites by result and playlist type
	// (master, media or unknown).
	ManifestRewrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "manifest_rewrites_total",
		Help:      "HLS manifest rewrites by result and playlist type.",
	}, []string{"result", "type"})

	ProxiedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proxied_bytes_total",
		Help:      "Bytes streamed from upstream to clients.",
	})

	// ResolverDecisions counts metadata resolutions by kind and decision.
	ResolverDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metadata_resolutions_total",
		Help:      "Metadata resolutions by kind and decision.",
	}, []string{"kind", "decision"})

	StreamIDResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_id_resolutions_total",
		Help:      "Stream id resolutions by path and outcome.",
	}, []string{"path", "outcome"})

	ProxyRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proxy_rejections_total",
		Help:      "Proxied URLs rejected before any upstream request.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		ProbeResults,
		ManifestRewrites,
		ProxiedBytes,
		ResolverDecisions,
		StreamIDResolutions,
		ProxyRejections,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
