// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "pgx"
)

// SQLLedger stores projects in a relational database. The same schema and
// statements serve SQLite and Postgres; placeholders are rewritten for Postgres.
type SQLLedger struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// NewSQLiteLedger opens (creating if needed) the database file at path.
func NewSQLiteLedger(ctx context.Context, path string) (*SQLLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(dialectSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return newSQLLedger(ctx, db, dialectSQLite)
}

// NewPostgresLedger connects through the pgx database/sql driver.
func NewPostgresLedger(ctx context.Context, dsn string) (*SQLLedger, error) {
	db, err := sql.Open(dialectPostgres, strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newSQLLedger(ctx, db, dialectPostgres)
}

func newSQLLedger(ctx context.Context, db *sql.DB, dialect string) (*SQLLedger, error) {
	l := &SQLLedger{db: db, dialect: dialect, now: time.Now}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return l, nil
}

func (l *SQLLedger) Close() error {
	return l.db.Close()
}

func (l *SQLLedger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`); err != nil {
		return err
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		var applied int
		err := l.db.QueryRowContext(ctx, l.rebind(`SELECT 1 FROM _migrations WHERE name = ?`), name).Scan(&applied)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		for _, statement := range strings.Split(string(content), ";") {
			if strings.TrimSpace(statement) == "" {
				continue
			}
			if _, err := l.db.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", name, err)
			}
		}
		if _, err := l.db.ExecContext(ctx, l.rebind(`INSERT INTO _migrations (name) VALUES (?)`), name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		slog.Info("applied migration", "name", name, "dialect", l.dialect)
	}
	return nil
}

// rebind rewrites `?` placeholders as `$1..$n` for Postgres.
func (l *SQLLedger) rebind(query string) string {
	if l.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *SQLLedger) Create(ctx context.Context, id string, ownerID string, name string) error {
	now := l.now().UTC().UnixMilli()
	res, err := l.db.ExecContext(ctx, l.rebind(
		`INSERT INTO projects (id, owner_id, name, original_video_url, detected_segments, state, created_at, updated_at)
		 VALUES (?, ?, ?, '', '[]', ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		id, ownerID, name, string(model.ProjectStatePending), now, now)
	if err != nil {
		return fmt.Errorf("failed to create project %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectExists, id)
	}
	return nil
}

func (l *SQLLedger) Update(ctx context.Context, id string, update ProjectUpdate) error {
	if err := validateUpdate(update); err != nil {
		return fmt.Errorf("invalid update for project %s: %w", id, err)
	}
	segments := update.Segments
	if segments == nil {
		segments = []*model.Segment{}
	}
	encoded, err := json.Marshal(segments)
	if err != nil {
		return err
	}

	res, err := l.db.ExecContext(ctx, l.rebind(
		`UPDATE projects SET state = ?, detected_segments = ?, original_video_url = ?, updated_at = ?
		 WHERE id = ? AND state = ?`),
		string(update.State), string(encoded), update.OriginalVideoURL, l.now().UTC().UnixMilli(),
		id, string(model.ProjectStatePending))
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := l.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrProjectNotPending, id)
}

const projectColumns = `id, owner_id, name, original_video_url, detected_segments, state, created_at`

func (l *SQLLedger) Get(ctx context.Context, id string) (*model.Project, error) {
	row := l.db.QueryRowContext(ctx, l.rebind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

func (l *SQLLedger) ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error) {
	return l.query(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
}

func (l *SQLLedger) ListStalePending(ctx context.Context, before time.Time) ([]*model.Project, error) {
	return l.query(ctx, `SELECT `+projectColumns+` FROM projects WHERE state = ? AND created_at < ? ORDER BY created_at`,
		string(model.ProjectStatePending), before.UTC().UnixMilli())
}

func (l *SQLLedger) query(ctx context.Context, query string, args ...any) ([]*model.Project, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p         model.Project
		segments  string
		state     string
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.OriginalVideoURL, &segments, &state, &createdAt); err != nil {
		return nil, err
	}
	p.State = model.ProjectState(state)
	p.CreatedDate = time.UnixMilli(createdAt).UTC()
	p.DetectedSegments = make([]*model.Segment, 0)
	if err := json.Unmarshal([]byte(segments), &p.DetectedSegments); err != nil {
		return nil, fmt.Errorf("corrupt segments for project %s: %w", p.ID, err)
	}
	return &p, nil
}
