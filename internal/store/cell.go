package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
)

// Cell persists one JSON snapshot under a fixed key. Saving a snapshot whose
// encoding matches the last one loaded or saved is skipped.
//
// Failures are logged and never returned: a broken store must not stop the
// session.
type Cell[T any] struct {
	kv     KV
	key    string
	last   string
	logger zerolog.Logger
}

// NewCell returns a Cell bound to key.
func NewCell[T any](kv KV, key string, logger zerolog.Logger) *Cell[T] {
	return &Cell[T]{
		kv:     kv,
		key:    key,
		logger: logger.With().Str("key", key).Logger(),
	}
}

// Load returns the stored snapshot, or def if nothing is stored or the
// stored text does not parse.
func (c *Cell[T]) Load(def T) T {
	if c.kv == nil {
		return def
	}

	raw, err := c.kv.Load(context.Background(), c.key)
	if errors.Is(err, ErrNotFound) {
		return def
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load snapshot, using defaults")
		return def
	}

	v := def
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.logger.Warn().Err(err).Msg("Stored snapshot does not parse, using defaults")
		return def
	}

	c.last = raw
	return v
}

// Save writes v unless it encodes identically to the last snapshot.
func (c *Cell[T]) Save(v T) {
	if c.kv == nil {
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode snapshot")
		return
	}
	if string(raw) == c.last {
		return
	}

	if err := c.kv.Save(context.Background(), c.key, string(raw)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to save snapshot")
		return
	}
	c.last = string(raw)
}
