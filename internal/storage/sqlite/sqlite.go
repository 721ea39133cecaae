// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps PRAGMAs in effect and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateMarker persists a new marker owned by ownerID.
func (s *SQLiteStore) CreateMarker(ctx context.Context, ownerID string, lat, lng float64) (*models.Marker, error) {
	owner, err := s.GetUserByID(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownUser, ownerID)
	}
	if err != nil {
		return nil, err
	}

	marker := &models.Marker{
		ID:         uuid.New().String(),
		Lat:        lat,
		Lng:        lng,
		OwnerEmail: owner.Email,
		CreatedAt:  s.now().UTC().Truncate(time.Microsecond),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO markers (id, lat, lng, user_id, created_at) VALUES (?, ?, ?, ?, ?)",
		marker.ID, marker.Lat, marker.Lng, owner.ID, marker.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert marker: %w", err)
	}

	return marker, nil
}

// ListMarkers retrieves every marker, newest first.
func (s *SQLiteStore) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.lat, m.lng, u.email, m.created_at
		 FROM markers m JOIN users u ON u.id = m.user_id
		 ORDER BY m.created_at DESC, m.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}
	defer rows.Close()

	return scanMarkers(rows)
}

// ListMarkersByOwner retrieves the markers created by ownerID, newest first.
func (s *SQLiteStore) ListMarkersByOwner(ctx context.Context, ownerID string) ([]models.Marker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.lat, m.lng, u.email, m.created_at
		 FROM markers m JOIN users u ON u.id = m.user_id
		 WHERE m.user_id = ?
		 ORDER BY m.created_at DESC, m.id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list markers by owner: %w", err)
	}
	defer rows.Close()

	return scanMarkers(rows)
}

// TopContributors returns the users with the most markers.
func (s *SQLiteStore) TopContributors(ctx context.Context, limit int) ([]models.Contributor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.image, COUNT(m.id) AS cnt
		 FROM users u JOIN markers m ON m.user_id = u.id
		 GROUP BY u.id, u.name, u.image
		 ORDER BY cnt DESC, u.id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributors: %w", err)
	}
	defer rows.Close()

	contributors := []models.Contributor{}
	for rows.Next() {
		var c models.Contributor
		var image string
		if err := rows.Scan(&c.ID, &c.Name, &image, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan contributor: %w", err)
		}
		if image != "" {
			c.Image = &image
		}
		contributors = append(contributors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contributors: %w", err)
	}

	return storage.RankContributors(contributors), nil
}

// scanMarkers drains rows of (id, lat, lng, email, created_at).
func scanMarkers(rows *sql.Rows) ([]models.Marker, error) {
	markers := []models.Marker{}
	for rows.Next() {
		var m models.Marker
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Lat, &m.Lng, &m.OwnerEmail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan marker: %w", err)
		}
		m.CreatedAt = time.UnixMicro(createdAt).UTC()
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate markers: %w", err)
	}
	return markers, nil
}
