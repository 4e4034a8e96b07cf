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
	"fmt"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// Statements valid for both PostgreSQL and SQLite.
var schema = []struct {
	table string
	ddl   string
}{
	{
		table: "metadata_cache",
		ddl: `
        CREATE TABLE IF NOT EXISTS metadata_cache (
            kind TEXT NOT NULL,
            upstream_id TEXT NOT NULL,
            provider_id BIGINT,
            payload TEXT NOT NULL,
            raw TEXT,
            cached_at BIGINT NOT NULL,
            PRIMARY KEY (kind, upstream_id)
        )`,
	},
	{
		table: "linked_accounts",
		ddl: `
        CREATE TABLE IF NOT EXISTS linked_accounts (
            user_id TEXT PRIMARY KEY,
            base_url TEXT NOT NULL,
            username TEXT NOT NULL,
            password_enc TEXT NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
	},
}

// initSchema creates database tables if they don't exist
func (m *DBManager) initSchema(ctx context.Context) error {
	utils.InfoLog("Initializing database schema")

	if m == nil || m.db == nil {
		return errNotInitialized
	}

	for _, s := range schema {
		if _, err := m.db.ExecContext(ctx, s.ddl); err != nil {
			utils.ErrorLog("Failed to create %s table: %v", s.table, err)
			return fmt.Errorf("failed to create %s table: %w", s.table, err)
		}
	}

	utils.InfoLog("Database schema initialized successfully")
	return nil
}
