package data

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id           VARCHAR PRIMARY KEY,
	title        VARCHAR NOT NULL,
	author       VARCHAR DEFAULT '',
	description  VARCHAR DEFAULT '',
	cover_url    VARCHAR DEFAULT '',
	source       VARCHAR NOT NULL,
	status       VARCHAR DEFAULT '',
	custom_cover VARCHAR DEFAULT '',
	favorite     BOOLEAN DEFAULT false
);

CREATE TABLE IF NOT EXISTS chapters (
	id           VARCHAR PRIMARY KEY,
	entry_id     VARCHAR NOT NULL,
	name         VARCHAR NOT NULL,
	scanlator    VARCHAR DEFAULT '',
	number       DOUBLE DEFAULT -1,
	source_order INTEGER DEFAULT 0,
	upload_date  TIMESTAMP,
	url          VARCHAR DEFAULT '',
	read         BOOLEAN DEFAULT false,
	bookmark     BOOLEAN DEFAULT false,
	position     INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entry_categories (
	entry_id VARCHAR NOT NULL,
	category VARCHAR NOT NULL,
	PRIMARY KEY (entry_id, category)
);
`

// ErrNotFound is returned by lookups that require the row to exist.
var ErrNotFound = errors.New("not found")

// InitDuckDB opens the database at path, creating parent directories and the
// schema when missing.
func InitDuckDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

type Repository struct {
	db *sql.DB
}

// NewDuckDBRepository opens the library database at path. The caller owns the
// returned repository and must Close it.
func NewDuckDBRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveEntry(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO entries
			(id, title, author, description, cover_url, source, status, custom_cover, favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Title, entry.Author, entry.Description, entry.CoverURL,
		entry.Source, entry.Status, entry.CustomCover, entry.Favorite,
	)
	if err != nil {
		return fmt.Errorf("failed to save entry %s: %w", entry.ID, err)
	}
	return nil
}

// GetEntry returns nil without error when the entry does not exist.
func (r *Repository) GetEntry(id string) (*Entry, error) {
	row := r.db.QueryRow(`
		SELECT id, title, author, description, cover_url, source, status, custom_cover, favorite
		FROM entries WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return entry, nil
}

func (r *Repository) ListEntries() ([]*Entry, error) {
	rows, err := r.db.Query(`
		SELECT id, title, author, description, cover_url, source, status, custom_cover, favorite
		FROM entries ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *Repository) DeleteEntry(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM chapters WHERE entry_id = ?`,
		`DELETE FROM entry_categories WHERE entry_id = ?`,
		`DELETE FROM entries WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete entry %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (r *Repository) SaveChapter(chapter *Chapter) error {
	if chapter == nil {
		return fmt.Errorf("chapter cannot be nil")
	}
	var uploaded any
	if !chapter.UploadDate.IsZero() {
		uploaded = chapter.UploadDate.UTC()
	}
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO chapters
			(id, entry_id, name, scanlator, number, source_order, upload_date, url, read, bookmark, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chapter.ID, chapter.EntryID, chapter.Name, chapter.Scanlator, chapter.Number,
		chapter.SourceOrder, uploaded, chapter.URL, chapter.Read, chapter.Bookmark, chapter.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to save chapter %s: %w", chapter.ID, err)
	}
	return nil
}

// GetChapter returns ErrNotFound when the chapter does not exist.
func (r *Repository) GetChapter(id string) (*Chapter, error) {
	row := r.db.QueryRow(`
		SELECT id, entry_id, name, scanlator, number, source_order, upload_date, url, read, bookmark, position
		FROM chapters WHERE id = ?`, id)

	chapter, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chapter %s: %w", id, err)
	}
	return chapter, nil
}

// GetChapters returns the chapters of an entry in source order.
func (r *Repository) GetChapters(entryID string) ([]*Chapter, error) {
	rows, err := r.db.Query(`
		SELECT id, entry_id, name, scanlator, number, source_order, upload_date, url, read, bookmark, position
		FROM chapters WHERE entry_id = ? ORDER BY source_order, number`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

// UpdateChapterProgress stores listening history for a chapter.
func (r *Repository) UpdateChapterProgress(chapterID string, read, bookmark bool, position int) error {
	res, err := r.db.Exec(`UPDATE chapters SET read = ?, bookmark = ?, position = ? WHERE id = ?`,
		read, bookmark, position, chapterID)
	if err != nil {
		return fmt.Errorf("failed to update chapter %s: %w", chapterID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("chapter %s: %w", chapterID, ErrNotFound)
	}
	return nil
}

// GetEntryWithChapterCount returns the entry with its total and listened chapter counts.
func (r *Repository) GetEntryWithChapterCount(entryID string) (*Entry, int, int, error) {
	entry, err := r.GetEntry(entryID)
	if err != nil || entry == nil {
		return entry, 0, 0, err
	}

	var total, read int
	err = r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN read THEN 1 ELSE 0 END), 0)
		FROM chapters WHERE entry_id = ?`, entryID).Scan(&total, &read)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count chapters: %w", err)
	}
	return entry, total, read, nil
}

func (r *Repository) GetEntryCategories(entryID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT category FROM entry_categories WHERE entry_id = ? ORDER BY category`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SetEntryCategories replaces the category set of an entry.
func (r *Repository) SetEntryCategories(entryID string, categories []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entry_categories WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	for _, c := range categories {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO entry_categories (entry_id, category) VALUES (?, ?)`, entryID, c); err != nil {
			return fmt.Errorf("failed to add category %q: %w", c, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	if err := s.Scan(&e.ID, &e.Title, &e.Author, &e.Description, &e.CoverURL,
		&e.Source, &e.Status, &e.CustomCover, &e.Favorite); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanChapter(s scanner) (*Chapter, error) {
	var (
		c        Chapter
		uploaded sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.EntryID, &c.Name, &c.Scanlator, &c.Number, &c.SourceOrder,
		&uploaded, &c.URL, &c.Read, &c.Bookmark, &c.Position); err != nil {
		return nil, err
	}
	if uploaded.Valid {
		c.UploadDate = uploaded.Time
	}
	return &c, nil
}
