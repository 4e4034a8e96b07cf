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
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

var errNotInitialized = errors.New("database not initialized")

// DBManager handles database operations
type DBManager struct {
	db          *sql.DB
	driver      string
	initialized bool
}

// NewDBManager opens the database and creates the schema. An empty dsn for
// postgres is built from the DB_* environment variables.
func NewDBManager(driver, dsn string) (*DBManager, error) {
	if driver == "" {
		driver = DriverPostgres
	}

	switch driver {
	case DriverPostgres:
		if dsn == "" {
			dsn = postgresDSNFromEnv()
		}
		utils.InfoLog("Initializing PostgreSQL database connection")
	case DriverSQLite:
		if dsn == "" {
			dsn = "nova-stream.db"
		}
		utils.InfoLog("Initializing SQLite database at %s", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One connection: writers never contend and :memory: stays a single database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		utils.ErrorLog("Failed to connect to database: %v", err)
		db.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}
	utils.InfoLog("Database connection successful")

	manager := &DBManager{db: db, driver: driver}
	if err := manager.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	manager.initialized = true
	return manager, nil
}

func postgresDSNFromEnv() string {
	host := utils.GetEnvOrDefault("DB_HOST", "localhost")
	port := utils.GetEnvOrDefault("DB_PORT", "5432")
	dbName := utils.GetEnvOrDefault("DB_NAME", "novastream")
	user := utils.GetEnvOrDefault("DB_USER", "postgres")
	password := utils.GetEnvOrDefault("DB_PASSWORD", "")
	sslMode := utils.GetEnvOrDefault("DB_SSLMODE", "disable")

	utils.DebugLog("Connecting to PostgreSQL: host=%s port=%s dbname=%s user=%s", host, port, dbName, user)
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		host, port, dbName, user, password, sslMode,
	)
}

// IsInitialized returns whether the database is initialized
func (m *DBManager) IsInitialized() bool {
	return m != nil && m.initialized && m.db != nil
}

// Driver returns the database/sql driver name in use.
func (m *DBManager) Driver() string {
	if m == nil {
		return ""
	}
	return m.driver
}

// Ping checks the connection, for health checks.
func (m *DBManager) Ping(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errNotInitialized
	}
	return m.db.PingContext(ctx)
}

// Close closes the database connection
func (m *DBManager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	utils.InfoLog("Closing database connection")
	return m.db.Close()
}

// rebind turns ? placeholders into $N for postgres.
func (m *DBManager) rebind(query string) string {
	if m.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
