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
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/config"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

const (
	userIDKey     = "user_id"
	anonymousUser = "default"
)

// internalAPIKey reads INTERNAL_API_KEY or generates one for this process.
func internalAPIKey() string {
	if key := os.Getenv("INTERNAL_API_KEY"); key != "" {
		utils.InfoLog("Using internal API key from environment")
		return key
	}
	key := uuid.New().String()
	utils.InfoLog("Generated new internal API key: %s", utils.MaskString(key))
	return key
}

// apiKeyAuth validates the X-API-Key header of internal endpoints.
func (c *Config) apiKeyAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(c.apiKey)) != 1 {
			utils.DebugLog("API authentication failed - invalid key: %s", utils.MaskString(key))
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, types.APIResponse{
				Success: false,
				Error:   "unauthorized",
				Message: "invalid API key",
			})
			return
		}
		ctx.Next()
	}
}

func (c *Config) authEnabled() bool {
	return c.LDAP.Enabled || c.User != ""
}

// authenticate accepts a playback token (t), Basic auth, or username and
// password in the query or form. The authenticated user id is stored under
// userIDKey. Without LDAP or a local user every request is anonymous.
func (c *Config) authenticate(ctx *gin.Context) {
	if token := ctx.Query("t"); token != "" {
		user, err := c.tokens.verify(token)
		if err != nil {
			utils.DebugLog("Rejected playback token on %s", ctx.Request.URL.Path)
			respondError(ctx, fmt.Errorf("%w: %v", types.ErrUnauthorized, err))
			return
		}
		ctx.Set(userIDKey, user)
		return
	}

	if !c.authEnabled() {
		ctx.Set(userIDKey, anonymousUser)
		return
	}

	username, password, ok := ctx.Request.BasicAuth()
	if !ok {
		username, password = formCredential(ctx, "username"), formCredential(ctx, "password")
	}
	if username == "" || password == "" {
		ctx.Header("WWW-Authenticate", `Basic realm="nova-stream"`)
		respondError(ctx, fmt.Errorf("%w: missing credentials", types.ErrUnauthorized))
		return
	}
	if !c.checkPassword(username, password) {
		utils.DebugLog("Authentication failed for user: %s", username)
		respondError(ctx, fmt.Errorf("%w: bad credentials", types.ErrUnauthorized))
		return
	}
	ctx.Set(userIDKey, username)
}

func formCredential(ctx *gin.Context, key string) string {
	if v, ok := ctx.GetQuery(key); ok {
		return v
	}
	v, _ := ctx.GetPostForm(key)
	return v
}

// checkPassword validates against LDAP when enabled, else against the local
// user. A local password starting with a bcrypt prefix is compared as a hash.
func (c *Config) checkPassword(username, password string) bool {
	if c.LDAP.Enabled {
		return ldapAuthenticate(c.LDAP, username, password)
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(c.User.String())) != 1 {
		return false
	}
	want := c.Password.String()
	if isBcryptHash(want) {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(want)) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func userID(ctx *gin.Context) string {
	if v := ctx.GetString(userIDKey); v != "" {
		return v
	}
	return anonymousUser
}

// ldapAuthenticate binds with the optional service account, finds the user
// DN, checks group membership when required, then binds as the user.
func ldapAuthenticate(cfg config.LDAPConfig, username, password string) bool {
	l, err := ldap.DialURL(cfg.Server)
	if err != nil {
		utils.DebugLog("LDAP DialURL error: %v", err)
		return false
	}
	defer l.Close()

	if cfg.BindDN != "" && cfg.BindPassword != "" {
		if err := l.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			utils.DebugLog("LDAP service bind error: %v", err)
			return false
		}
	}

	userAttr := cfg.UserAttribute
	if userAttr == "" {
		userAttr = "uid"
	}
	attrs := []string{"dn"}
	if cfg.GroupAttribute != "" {
		attrs = append(attrs, cfg.GroupAttribute)
	}
	filter := fmt.Sprintf("(%s=%s)", userAttr, ldap.EscapeFilter(username))
	sr, err := l.Search(ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter, attrs, nil,
	))
	if err != nil {
		utils.DebugLog("LDAP search error: %v", err)
		return false
	}
	if len(sr.Entries) == 0 {
		utils.DebugLog("LDAP search: no entries found for user: %s", username)
		return false
	}
	entry := sr.Entries[0]

	if cfg.RequiredGroup != "" && cfg.GroupAttribute != "" {
		member := false
		for _, g := range entry.GetAttributeValues(cfg.GroupAttribute) {
			if strings.Contains(strings.ToLower(g), strings.ToLower(cfg.RequiredGroup)) {
				member = true
				break
			}
		}
		if !member {
			utils.DebugLog("LDAP user %s is not a member of required group: %s", username, cfg.RequiredGroup)
			return false
		}
	}

	if err := l.Bind(entry.DN, password); err != nil {
		utils.DebugLog("LDAP user bind error: %v", err)
		return false
	}
	return true
}
