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

// Package credentials looks up the upstream panel account bound to a user.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/config"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/database"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// Store returns decrypted credentials for a user, or types.ErrNotLinked.
type Store interface {
	Credentials(ctx context.Context, userID string) (*types.Credentials, error)
}

// ParseBaseURL validates a panel base URL. Query, fragment and user info
// are dropped and a trailing slash is trimmed.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", types.ErrBadRequest, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: base url needs an http(s) scheme and host", types.ErrBadRequest)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u, nil
}

// StaticStore serves the single account configured with the xtream-* flags
// to every user.
type StaticStore struct {
	creds *types.Credentials
}

// NewStaticStore returns nil when the configuration holds no account.
func NewStaticStore(cfg *config.ProxyConfig) (*StaticStore, error) {
	if cfg == nil || !cfg.StaticAccountConfigured() {
		return nil, nil
	}
	base, err := ParseBaseURL(cfg.XtreamBaseURL)
	if err != nil {
		return nil, err
	}
	return &StaticStore{creds: &types.Credentials{
		BaseURL:  base,
		Username: cfg.XtreamUser.String(),
		Password: cfg.XtreamPassword.String(),
	}}, nil
}

// Credentials returns a copy of the configured account.
func (s *StaticStore) Credentials(_ context.Context, _ string) (*types.Credentials, error) {
	if s == nil || s.creds == nil {
		return nil, types.ErrNotLinked
	}
	base := *s.creds.BaseURL
	return &types.Credentials{BaseURL: &base, Username: s.creds.Username, Password: s.creds.Password}, nil
}

// SQLStore reads linked accounts from the database.
type SQLStore struct {
	db     *database.DBManager
	sealer *Sealer
}

// NewSQLStore creates a store over the linked_accounts table.
func NewSQLStore(db *database.DBManager, sealer *Sealer) *SQLStore {
	return &SQLStore{db: db, sealer: sealer}
}

// Credentials opens the stored password of userID.
func (s *SQLStore) Credentials(ctx context.Context, userID string) (*types.Credentials, error) {
	if userID == "" {
		return nil, types.ErrNotLinked
	}
	acc, err := s.db.GetLinkedAccount(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, types.ErrNotLinked
	}
	if err != nil {
		return nil, err
	}
	base, err := ParseBaseURL(acc.BaseURL)
	if err != nil {
		utils.WarnLog("Linked account of %s has an invalid base url", userID)
		return nil, types.ErrNotLinked
	}
	password, err := s.sealer.Open(userID, acc.PasswordEnc)
	if err != nil {
		// A key rotation without re-linking lands here.
		utils.ErrorLog("Cannot open credentials of %s: %v", userID, err)
		return nil, types.ErrNotLinked
	}
	return &types.Credentials{BaseURL: base, Username: acc.Username, Password: password}, nil
}

// Link seals and stores an account for userID.
func (s *SQLStore) Link(ctx context.Context, userID, baseURL, username, password string) error {
	if strings.TrimSpace(userID) == "" || username == "" {
		return fmt.Errorf("%w: user id and username are required", types.ErrBadRequest)
	}
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(userID, password)
	if err != nil {
		return err
	}
	return s.db.UpsertLinkedAccount(ctx, database.LinkedAccount{
		UserID:      userID,
		BaseURL:     base.String(),
		Username:    username,
		PasswordEnc: sealed,
	})
}

// Unlink removes the account of userID.
func (s *SQLStore) Unlink(ctx context.Context, userID string) error {
	return s.db.DeleteLinkedAccount(ctx, userID)
}

// Chain tries each store in order and returns the first linked account.
type Chain []Store

// Credentials implements Store.
func (c Chain) Credentials(ctx context.Context, userID string) (*types.Credentials, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		creds, err := s.Credentials(ctx, userID)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, types.ErrNotLinked) {
			return nil, err
		}
	}
	return nil, types.ErrNotLinked
}
