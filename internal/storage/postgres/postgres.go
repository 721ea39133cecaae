// Package postgres provides a PostgreSQL-backed implementation of the storage.Store interface.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS markers (
    id TEXT PRIMARY KEY,
    lat DOUBLE PRECISION NOT NULL,
    lng DOUBLE PRECISION NOT NULL,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_markers_created_at ON markers(created_at);
CREATE INDEX IF NOT EXISTS idx_markers_user_id ON markers(user_id);
`

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and runs migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the server answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "select 1").Scan(&one)
}

// CreateMarker inserts a marker and returns it with the owner's email.
func (s *Store) CreateMarker(ctx context.Context, ownerID string, lat, lng float64) (*models.Marker, error) {
	marker := &models.Marker{
		ID:  uuid.New().String(),
		Lat: lat,
		Lng: lng,
	}

	// The insert only happens when the owner exists; no row back means unknown user.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO markers (id, lat, lng, user_id, created_at)
		 SELECT $1, $2, $3, u.id, clock_timestamp() FROM users u WHERE u.id = $4
		 RETURNING created_at, (SELECT email FROM users WHERE id = $4)`,
		marker.ID, lat, lng, ownerID,
	).Scan(&marker.CreatedAt, &marker.OwnerEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownUser, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert marker: %w", err)
	}
	marker.CreatedAt = marker.CreatedAt.UTC()

	return marker, nil
}

// ListMarkers returns every marker, newest first.
func (s *Store) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.lat, m.lng, u.email, m.created_at
		 FROM markers m JOIN users u ON u.id = m.user_id
		 ORDER BY m.created_at DESC, m.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	return collectMarkers(rows)
}

// ListMarkersByOwner returns the owner's markers, newest first.
func (s *Store) ListMarkersByOwner(ctx context.Context, ownerID string) ([]models.Marker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.lat, m.lng, u.email, m.created_at
		 FROM markers m JOIN users u ON u.id = m.user_id
		 WHERE m.user_id = $1
		 ORDER BY m.created_at DESC, m.id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list markers by owner: %w", err)
	}
	return collectMarkers(rows)
}

// TopContributors returns the users with the most markers.
func (s *Store) TopContributors(ctx context.Context, limit int) ([]models.Contributor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.name, u.image, COUNT(m.id)::int AS cnt
		 FROM users u JOIN markers m ON m.user_id = u.id
		 GROUP BY u.id, u.name, u.image
		 ORDER BY cnt DESC, u.id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query contributors: %w", err)
	}

	contributors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Contributor, error) {
		var c models.Contributor
		var image string
		if err := row.Scan(&c.ID, &c.Name, &image, &c.Count); err != nil {
			return c, err
		}
		if image != "" {
			c.Image = &image
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan contributors: %w", err)
	}
	return storage.RankContributors(contributors), nil
}

// UpsertUser finds a user by email or creates it.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}

	out := &models.User{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, image, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO UPDATE SET
		     name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		     image = CASE WHEN EXCLUDED.image <> '' THEN EXCLUDED.image ELSE users.image END
		 RETURNING id, email, name, image, created_at`,
		user.ID, user.Email, user.Name, user.Image, user.CreatedAt,
	).Scan(&out.ID, &out.Email, &out.Name, &out.Image, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", email)
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

// getUser looks a user up by one of the fixed key columns above.
func (s *Store) getUser(ctx context.Context, column, value string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, name, image, created_at FROM users WHERE "+column+" = $1", value,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Image, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", storage.ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return user, nil
}

func collectMarkers(rows pgx.Rows) ([]models.Marker, error) {
	markers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Marker, error) {
		var m models.Marker
		err := row.Scan(&m.ID, &m.Lat, &m.Lng, &m.OwnerEmail, &m.CreatedAt)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan markers: %w", err)
	}
	if markers == nil {
		markers = []models.Marker{}
	}
	return markers, nil
}
