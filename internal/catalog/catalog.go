// Package catalog persists styled captures: the JPEG goes to the media
// directory, its metadata into SQLite.
package catalog

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const captureJPEGQuality = 92

// ErrNotFound is returned when a capture ID is unknown.
var ErrNotFound = errors.New("capture not found")

// Capture is one saved still.
type Capture struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	SubjectPresent bool      `json:"subject_present"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Catalog owns the media directory and the metadata database.
type Catalog struct {
	db       *sql.DB
	mediaDir string
}

// Open creates or opens the catalog at dbPath, storing image files under
// mediaDir.
func Open(dbPath, mediaDir string) (*Catalog, error) {
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	c := &Catalog{db: db, mediaDir: mediaDir}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS captures (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		subject_present INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveCapture encodes the styled RGBA pixels as JPEG, writes the file and
// records the metadata. It returns the stored capture.
func (c *Catalog) SaveCapture(pix []byte, width, height int, subjectPresent bool) (*Capture, error) {
	if len(pix) < width*height*4 {
		return nil, fmt.Errorf("save capture: short pixel buffer (%d for %dx%d)", len(pix), width, height)
	}
	img := &image.RGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: captureJPEGQuality}); err != nil {
		return nil, fmt.Errorf("save capture: encode: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	name := fmt.Sprintf("%s_%s.jpg", now.Format("20060102_150405"), id[:8])
	path := filepath.Join(c.mediaDir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("save capture: write file: %w", err)
	}

	rec := &Capture{
		ID:             id,
		Path:           path,
		Width:          width,
		Height:         height,
		SubjectPresent: subjectPresent,
		SizeBytes:      int64(buf.Len()),
		CreatedAt:      now,
	}
	_, err := c.db.Exec(
		`INSERT INTO captures (id, path, width, height, subject_present, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.Width, rec.Height, rec.SubjectPresent, rec.SizeBytes, rec.CreatedAt,
	)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save capture: insert: %w", err)
	}
	return rec, nil
}

// List returns the most recent captures, newest first.
func (c *Catalog) List(limit int) ([]*Capture, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query(
		`SELECT id, path, width, height, subject_present, size_bytes, created_at
		 FROM captures ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		rec := &Capture{}
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Width, &rec.Height,
			&rec.SubjectPresent, &rec.SizeBytes, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("list captures: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one capture by ID.
func (c *Catalog) Get(id string) (*Capture, error) {
	rec := &Capture{}
	err := c.db.QueryRow(
		`SELECT id, path, width, height, subject_present, size_bytes, created_at
		 FROM captures WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Path, &rec.Width, &rec.Height,
			&rec.SubjectPresent, &rec.SizeBytes, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get capture: %w", err)
	}
	return rec, nil
}

// Delete removes a capture record and its image file.
func (c *Catalog) Delete(id string) error {
	rec, err := c.Get(id)
	if err != nil {
		return err
	}
	if _, err := c.db.Exec(`DELETE FROM captures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete capture: remove file: %w", err)
	}
	return nil
}
