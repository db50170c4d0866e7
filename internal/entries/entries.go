// Package entries persists per-entry configuration records (title, playback
// URL, icon, MIME type, enabled flag) in a SQLite database.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
)

var (
	ErrNotFound     = errors.New("config entry not found")
	ErrInvalidEntry = errors.New("invalid config entry")
)

const schema = `CREATE TABLE IF NOT EXISTS config_entries (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	title     TEXT NOT NULL,
	url       TEXT NOT NULL,
	icon_url  TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	disabled  INTEGER NOT NULL DEFAULT 0
)`

const selectCols = `SELECT id, title, url, icon_url, mime_type, disabled FROM config_entries`

// Store is a SQLite-backed list of config entries in insertion order.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open entries DB: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create config_entries: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add validates e, assigns a new id when e.ID is empty and stores it.
func (s *Store) Add(ctx context.Context, e catalog.ConfigEntry) (catalog.ConfigEntry, error) {
	e.Title = strings.TrimSpace(e.Title)
	e.URL = strings.TrimSpace(e.URL)
	e.IconURL = strings.TrimSpace(e.IconURL)
	e.MIMEType = strings.TrimSpace(e.MIMEType)
	if e.Title == "" {
		return catalog.ConfigEntry{}, fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	if err := safeurl.Check(e.URL); err != nil {
		return catalog.ConfigEntry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if e.IconURL != "" && !safeurl.IsHTTPOrHTTPS(e.IconURL) {
		return catalog.ConfigEntry{}, fmt.Errorf("%w: icon URL must be http or https", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_entries (id, title, url, icon_url, mime_type, disabled) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.URL, e.IconURL, e.MIMEType, e.Disabled)
	if err != nil {
		return catalog.ConfigEntry{}, fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return e, nil
}

// List returns every entry, disabled ones included, oldest first.
func (s *Store) List(ctx context.Context) ([]catalog.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	out := []catalog.ConfigEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (catalog.ConfigEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ConfigEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// SetDisabled flips the enabled flag of entry id.
func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE config_entries SET disabled = ? WHERE id = ?`, disabled, id)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (catalog.ConfigEntry, error) {
	var e catalog.ConfigEntry
	if err := row.Scan(&e.ID, &e.Title, &e.URL, &e.IconURL, &e.MIMEType, &e.Disabled); err != nil {
		return catalog.ConfigEntry{}, err
	}
	return e, nil
}
