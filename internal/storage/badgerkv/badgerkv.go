// Package badgerkv implements storage.Store on an embedded Badger key-value store.
//
// Markers are kept as an append-only list: each one lives under a key that
// sorts by creation time, so listings are reverse prefix scans.
//
// Key layout:
//
//	user:id:<id>                      -> user JSON
//	user:email:<email>                -> user id
//	marker:<micros>:<id>              -> marker record JSON
//	owner:<user id>:<micros>:<id>     -> marker key
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const (
	prefixUserID    = "user:id:"
	prefixUserEmail = "user:email:"
	prefixMarker    = "marker:"
	prefixOwner     = "owner:"
)

// record is the stored form of a marker; the email is resolved on read.
type record struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	UserID    string  `json:"user_id"`
	CreatedAt int64   `json:"created_at"`
}

// Store implements storage.Store with Badger.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (or creates) a Badger database in dir.
// An empty dir opens an in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{slog.Default()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// CreateMarker appends a marker to the list.
func (s *Store) CreateMarker(ctx context.Context, ownerID string, lat, lng float64) (*models.Marker, error) {
	createdAt := s.now().UTC().Truncate(time.Microsecond)
	rec := record{
		ID:        uuid.New().String(),
		Lat:       lat,
		Lng:       lng,
		UserID:    ownerID,
		CreatedAt: createdAt.UnixMicro(),
	}

	var owner *models.User
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		owner, err = getUser(txn, ownerID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", storage.ErrUnknownUser, ownerID)
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode marker: %w", err)
		}
		key := markerKey(rec.CreatedAt, rec.ID)
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(ownerKey(ownerID, rec.CreatedAt, rec.ID), key)
	})
	if err != nil {
		return nil, err
	}

	return &models.Marker{
		ID:         rec.ID,
		Lat:        lat,
		Lng:        lng,
		OwnerEmail: owner.Email,
		CreatedAt:  createdAt,
	}, nil
}

// ListMarkers returns every marker, newest first.
func (s *Store) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	markers := []models.Marker{}
	err := s.db.View(func(txn *badger.Txn) error {
		emails := map[string]string{}
		return scanReverse(txn, []byte(prefixMarker), func(item *badger.Item) error {
			return item.Value(func(val []byte) error {
				m, err := decodeMarker(txn, val, emails)
				if err != nil {
					return err
				}
				markers = append(markers, m)
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	return markers, nil
}

// ListMarkersByOwner walks the owner index, newest first.
func (s *Store) ListMarkersByOwner(ctx context.Context, ownerID string) ([]models.Marker, error) {
	markers := []models.Marker{}
	err := s.db.View(func(txn *badger.Txn) error {
		emails := map[string]string{}
		return scanReverse(txn, []byte(prefixOwner+ownerID+":"), func(item *badger.Item) error {
			key, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			markerItem, err := txn.Get(key)
			if err != nil {
				return fmt.Errorf("owner index points to missing marker: %w", err)
			}
			return markerItem.Value(func(val []byte) error {
				m, err := decodeMarker(txn, val, emails)
				if err != nil {
					return err
				}
				markers = append(markers, m)
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list markers by owner: %w", err)
	}
	return markers, nil
}

// TopContributors counts markers per owner with a full scan.
func (s *Store) TopContributors(ctx context.Context, limit int) ([]models.Contributor, error) {
	contributors := []models.Contributor{}
	err := s.db.View(func(txn *badger.Txn) error {
		counts := map[string]int{}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixOwner)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			userID, ok := ownerFromKey(it.Item().Key())
			if !ok {
				continue
			}
			counts[userID]++
		}

		for userID, count := range counts {
			user, err := getUser(txn, userID)
			if err != nil {
				return err
			}
			c := models.Contributor{ID: user.ID, Name: user.Name, Count: count}
			if user.Image != "" {
				image := user.Image
				c.Image = &image
			}
			contributors = append(contributors, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("top contributors: %w", err)
	}

	sort.Slice(contributors, func(i, j int) bool {
		if contributors[i].Count != contributors[j].Count {
			return contributors[i].Count > contributors[j].Count
		}
		return contributors[i].ID < contributors[j].ID
	})
	if len(contributors) > limit {
		contributors = contributors[:limit]
	}
	return storage.RankContributors(contributors), nil
}

// UpsertUser finds a user by email or creates it.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	var out *models.User
	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := getUserByEmail(txn, user.Email)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			out = &models.User{
				ID:        user.ID,
				Email:     user.Email,
				Name:      user.Name,
				Image:     user.Image,
				CreatedAt: user.CreatedAt,
			}
			if out.ID == "" {
				out.ID = uuid.New().String()
			}
			if out.CreatedAt == 0 {
				out.CreatedAt = s.now().Unix()
			}
			if err := txn.Set([]byte(prefixUserEmail+out.Email), []byte(out.ID)); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			out = existing
			if user.Name != "" {
				out.Name = user.Name
			}
			if user.Image != "" {
				out.Image = user.Image
			}
		}

		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		return txn.Set([]byte(prefixUserID+out.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUserByEmail(txn, email)
		return err
	})
	return user, err
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func getUser(txn *badger.Txn, id string) (*models.User, error) {
	item, err := txn.Get([]byte(prefixUserID + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: user %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	user := &models.User{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, user)
	})
	if err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

func getUserByEmail(txn *badger.Txn, email string) (*models.User, error) {
	item, err := txn.Get([]byte(prefixUserEmail + email))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: user %s", storage.ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return getUser(txn, string(id))
}

// decodeMarker turns a stored record into a Marker, memoizing owner emails.
func decodeMarker(txn *badger.Txn, val []byte, emails map[string]string) (models.Marker, error) {
	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return models.Marker{}, fmt.Errorf("decode marker: %w", err)
	}

	email, ok := emails[rec.UserID]
	if !ok {
		user, err := getUser(txn, rec.UserID)
		if err != nil {
			return models.Marker{}, err
		}
		email = user.Email
		emails[rec.UserID] = email
	}

	return models.Marker{
		ID:         rec.ID,
		Lat:        rec.Lat,
		Lng:        rec.Lng,
		OwnerEmail: email,
		CreatedAt:  time.UnixMicro(rec.CreatedAt).UTC(),
	}, nil
}

// scanReverse visits keys under prefix from last to first.
func scanReverse(txn *badger.Txn, prefix []byte, fn func(*badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.Valid(); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

// markerKey sorts by time; micros are zero padded so byte order matches numeric order.
func markerKey(micros int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixMarker, micros, id))
}

func ownerKey(userID string, micros int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOwner, userID, micros, id))
}

// ownerFromKey extracts the user id from an owner index key.
func ownerFromKey(key []byte) (string, bool) {
	rest := key[len(prefixOwner):]
	// user ids never contain ':'; the timestamp segment follows the first one.
	for i, b := range rest {
		if b == ':' {
			return string(rest[:i]), true
		}
	}
	return "", false
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger", "detail", fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger", "detail", fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger", "detail", fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug("badger", "detail", fmt.Sprintf(format, args...))
}
