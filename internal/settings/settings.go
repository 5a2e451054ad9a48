// Package settings stores display preferences as typed key/value pairs.
package settings

import (
	"context"
	"strconv"

	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// Well-known keys.
const (
	KeyPageSize      = "history.page_size"
	KeyShowPresence  = "contacts.show_presence"
	KeyContactSort   = "contacts.sort"
	KeyNotifications = "notifications.enabled"
)

// Store reads and writes preferences. Reads never fail: a missing or
// unreadable value yields the caller's default.
type Store struct {
	db     *store.DB
	logger *zap.Logger
}

// New creates a settings store.
func New(db *store.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.db.GetSetting(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read setting", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

// GetInt returns the integer stored under key, or def.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	v, ok := s.get(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.logger.Warn("setting is not an int", zap.String("key", key), zap.String("value", v))
		return def
	}
	return n
}

// SetInt stores an integer under key.
func (s *Store) SetInt(ctx context.Context, key string, v int) error {
	return s.db.PutSetting(ctx, key, strconv.Itoa(v))
}

// GetBool returns the boolean stored under key, or def.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	v, ok := s.get(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.logger.Warn("setting is not a bool", zap.String("key", key), zap.String("value", v))
		return def
	}
	return b
}

// SetBool stores a boolean under key.
func (s *Store) SetBool(ctx context.Context, key string, v bool) error {
	return s.db.PutSetting(ctx, key, strconv.FormatBool(v))
}

// GetString returns the string stored under key, or def.
func (s *Store) GetString(ctx context.Context, key, def string) string {
	v, ok := s.get(ctx, key)
	if !ok {
		return def
	}
	return v
}

// SetString stores a string under key.
func (s *Store) SetString(ctx context.Context, key, v string) error {
	return s.db.PutSetting(ctx, key, v)
}
