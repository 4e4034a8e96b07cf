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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// LinkedAccount is a user's upstream panel account. PasswordEnc is the
// sealed password; this package never sees the plaintext.
type LinkedAccount struct {
	UserID      string
	BaseURL     string
	Username    string
	PasswordEnc string
	UpdatedAt   time.Time
}

// UpsertLinkedAccount stores or replaces the account of a user.
func (m *DBManager) UpsertLinkedAccount(ctx context.Context, a LinkedAccount) error {
	utils.DebugLog("Database: linking upstream account for user %s", a.UserID)
	if m == nil || m.db == nil {
		return errNotInitialized
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	_, err := m.db.ExecContext(ctx, m.rebind(`
        INSERT INTO linked_accounts (user_id, base_url, username, password_enc, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET
          base_url = EXCLUDED.base_url,
          username = EXCLUDED.username,
          password_enc = EXCLUDED.password_enc,
          updated_at = EXCLUDED.updated_at`),
		a.UserID, a.BaseURL, a.Username, a.PasswordEnc, a.UpdatedAt.UnixMilli())
	if err != nil {
		utils.ErrorLog("Database error linking account for %s: %v", a.UserID, err)
	}
	return err
}

// GetLinkedAccount returns the account of a user, or ErrNotFound.
func (m *DBManager) GetLinkedAccount(ctx context.Context, userID string) (*LinkedAccount, error) {
	if m == nil || m.db == nil {
		return nil, errNotInitialized
	}
	a := LinkedAccount{UserID: userID}
	var updated int64
	err := m.db.QueryRowContext(ctx, m.rebind(`
        SELECT base_url, username, password_enc, updated_at FROM linked_accounts
        WHERE user_id = ?`), userID).Scan(&a.BaseURL, &a.Username, &a.PasswordEnc, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		utils.DebugLog("No upstream account linked for user %s", userID)
		return nil, ErrNotFound
	}
	if err != nil {
		utils.ErrorLog("Database error getting linked account: %v", err)
		return nil, err
	}
	a.UpdatedAt = time.UnixMilli(updated)
	return &a, nil
}

// DeleteLinkedAccount unlinks a user. Missing rows are not an error.
func (m *DBManager) DeleteLinkedAccount(ctx context.Context, userID string) error {
	if m == nil || m.db == nil {
		return errNotInitialized
	}
	_, err := m.db.ExecContext(ctx, m.rebind(`DELETE FROM linked_accounts WHERE user_id = ?`), userID)
	return err
}
