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
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// linkRequest binds an upstream panel account to a user.
type linkRequest struct {
	BaseURL  string `json:"base_url" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// setupInternalAPI registers the account and cache management endpoints,
// guarded by X-API-Key.
func (c *Config) setupInternalAPI(r *gin.Engine) {
	api := r.Group("/api/internal")
	api.Use(c.apiKeyAuth())

	api.PUT("/accounts/:userId", c.linkAccount)
	api.DELETE("/accounts/:userId", c.unlinkAccount)
	api.DELETE("/metadata/:kind/:id", c.invalidateMetadata)
	api.DELETE("/catalog", c.forgetCatalog)

	api.GET("/ping", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "API is running",
			Data: map[string]interface{}{
				"time":            time.Now().UTC(),
				"db_driver":       c.db.Driver(),
				"linked_accounts": c.accounts != nil,
			},
		})
	})
}

func (c *Config) linkAccount(ctx *gin.Context) {
	var req linkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.Join(types.ErrBadRequest, err))
		return
	}
	userID := ctx.Param("userId")
	if err := c.LinkAccount(ctx.Request.Context(), userID, req.BaseURL, req.Username, req.Password); err != nil {
		if !errors.Is(err, types.ErrBadRequest) {
			err = utils.ErrorWithLocation(err)
		}
		respondError(ctx, err)
		return
	}
	utils.InfoLog("Linked upstream account %s for user %s", req.Username, userID)
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "account linked"})
}

func (c *Config) unlinkAccount(ctx *gin.Context) {
	if c.accounts == nil {
		respondError(ctx, types.ErrNotLinked)
		return
	}
	if err := c.accounts.Unlink(ctx.Request.Context(), ctx.Param("userId")); err != nil {
		respondError(ctx, utils.ErrorWithLocation(err))
		return
	}
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "account unlinked"})
}

func (c *Config) invalidateMetadata(ctx *gin.Context) {
	kind, err := types.ParseKind(ctx.Param("kind"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if err := c.cache.Invalidate(ctx.Request.Context(), kind, ctx.Param("id")); err != nil {
		respondError(ctx, utils.ErrorWithLocation(err))
		return
	}
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "metadata invalidated"})
}

// forgetCatalog drops the in-memory panel listings, e.g. after the panel
// added titles.
func (c *Config) forgetCatalog(ctx *gin.Context) {
	c.panel.Forget()
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "catalog cache cleared"})
}
