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
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/config"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/credentials"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/database"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/hls"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/metadata"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/playback"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/probe"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/streamid"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/tmdb"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/xtream"
)

// Config holds the server configuration and its wired components.
type Config struct {
	*config.ProxyConfig

	db       *database.DBManager
	accounts *credentials.SQLStore
	cache    *database.MetadataCache

	playback *playback.Service
	metadata *metadata.Resolver
	streams  *streamid.Resolver
	rewriter *hls.Rewriter
	panel    *xtream.CachingClient

	// proxyClient has no overall timeout: bodies stream as long as the
	// client stays connected.
	proxyClient *http.Client
	tokens      *tokenSigner
	apiKey      string
}

// NewServer opens the database and wires every component from cfg.
func NewServer(cfg *config.ProxyConfig) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, utils.PrintErrorAndReturn(err)
	}
	if cfg.UserAgent != "" {
		utils.SetIPTVUserAgent(cfg.UserAgent)
	}

	utils.InfoLog("Bootstrap: opening %s database", driverName(cfg.DBDriver))
	db, err := database.NewDBManager(driverName(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c := &Config{ProxyConfig: cfg, db: db}

	var chain credentials.Chain
	if cfg.CredentialKey != "" {
		sealer, err := credentials.NewSealer(cfg.CredentialKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("credential-key: %w", err)
		}
		c.accounts = credentials.NewSQLStore(db, sealer)
		chain = append(chain, c.accounts)
	} else {
		utils.WarnLog("Bootstrap: credential-key not set, linked accounts are disabled")
	}
	static, err := credentials.NewStaticStore(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	if static != nil {
		chain = append(chain, static)
		utils.InfoLog("Bootstrap: static upstream account %s@%s", cfg.XtreamUser, utils.MaskURL(cfg.XtreamBaseURL))
	}
	if len(chain) == 0 {
		utils.WarnLog("Bootstrap: no upstream account source, every media request will answer no-xtream")
	}

	upstreamHTTP := &http.Client{Transport: newTransport(0)}
	panel := xtream.NewCachingClient(xtream.New(upstreamHTTP, utils.GetIPTVUserAgent(), cfg.Timeouts.Manifest), xtream.DefaultCatalogTTL)
	c.panel = panel
	prober := probe.New(upstreamHTTP, cfg.Timeouts.Probe, nil)
	c.rewriter = hls.NewRewriter(upstreamHTTP, cfg.Timeouts.Manifest, nil)
	c.proxyClient = &http.Client{Transport: newTransport(cfg.Timeouts.Segment)}

	provider := tmdb.New(&http.Client{Transport: newTransport(0)}, tmdb.Options{
		APIKey:           cfg.TMDB.APIKey,
		BaseURL:          cfg.TMDB.BaseURL,
		Language:         cfg.TMDB.Language,
		FallbackLanguage: cfg.TMDB.FallbackLanguage,
		RequestsPerSec:   cfg.TMDB.RequestsPerSec,
		Retries:          cfg.TMDB.Retries,
		Timeout:          cfg.Timeouts.Provider,
	})
	if !provider.Configured() {
		utils.WarnLog("Bootstrap: tmdb-api-key not set, metadata falls back to panel data")
	}

	c.cache = db.MetadataCache(cfg.MetadataTTL)
	c.playback = playback.NewService(chain, panel, prober, c.rewriter, cfg.AllowedHosts)
	c.metadata = metadata.NewResolver(provider, panel, c.cache)
	c.streams = streamid.NewResolver(panel, provider, prober)

	secret := cfg.PlaybackSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		utils.InfoLog("Bootstrap: generated a random playback secret, tokens will not survive a restart")
	}
	c.tokens = newTokenSigner([]byte(secret), cfg.PlaybackTokenTTL)
	c.apiKey = internalAPIKey()

	return c, nil
}

func driverName(d string) string {
	if d == "" {
		return database.DriverPostgres
	}
	return d
}

// newTransport is tuned for long lived streams. headerTimeout bounds the
// wait for response headers only.
func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
}

// Router builds the gin engine.
func (c *Config) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), requestID)

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "Range", "If-Range")
	corsCfg.ExposeHeaders = []string{"Content-Length", "Content-Range", "Accept-Ranges", requestIDHeader}
	router.Use(cors.New(corsCfg))

	c.setupInternalAPI(router)
	c.routes(router)
	return router
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for a few seconds.
func (c *Config) Serve(ctx context.Context) error {
	utils.InfoLog("[nova-stream] Server is starting...")
	if c.db.IsInitialized() {
		utils.InfoLog("Bootstrap: %s database connected", c.db.Driver())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.HostConfig.Port),
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go c.purgeMetadata(ctx, purgeInterval)

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLog("[nova-stream] Server is ready and listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	utils.InfoLog("[nova-stream] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.WarnLog("Graceful shutdown incomplete: %v", err)
	}
	return nil
}

const purgeInterval = 6 * time.Hour

// purgeMetadata deletes cache rows older than twice the TTL. Rows between
// one and two TTLs stay around as stale fallbacks.
func (c *Config) purgeMetadata(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.cache.PurgeExpired(ctx, 2*c.cache.TTL()); err != nil {
				utils.WarnLog("Metadata purge failed: %v", err)
			}
		}
	}
}

// Close releases the database.
func (c *Config) Close() error {
	return c.db.Close()
}

// LinkAccount binds an upstream account to a user.
func (c *Config) LinkAccount(ctx context.Context, userID, baseURL, username, password string) error {
	if c.accounts == nil {
		return fmt.Errorf("%w: linked accounts need a credential-key", types.ErrBadRequest)
	}
	return c.accounts.Link(ctx, userID, baseURL, username, password)
}
