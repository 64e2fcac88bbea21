// Package cache persists per-user snapshots of the last successfully
// fetched portfolio document. Snapshots are a fallback only: they must
// never be trusted over a fresh successful store read.
package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/interfaces"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

const keyPrefix = "portfolio:"

// PortfolioCache stores one JSON-serialized PortfolioDocument per user id.
// All failures are swallowed and logged: a broken local cache must never
// block sign-in or any other operation.
type PortfolioCache struct {
	kv     interfaces.KeyValueStorage
	logger *common.Logger
}

// New creates a PortfolioCache backed by the given key-value storage.
func New(kv interfaces.KeyValueStorage, logger *common.Logger) *PortfolioCache {
	return &PortfolioCache{kv: kv, logger: logger}
}

func cacheKey(userID string) string {
	return keyPrefix + userID
}

// Read returns the cached document for the user, or nil when there is no
// usable snapshot (missing key, storage error, corrupt JSON).
func (c *PortfolioCache) Read(ctx context.Context, userID string) *models.PortfolioDocument {
	raw, err := c.kv.Get(ctx, cacheKey(userID))
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			c.logger.Warn().Str("user_id", userID).Str("error", err.Error()).Msg("cache read failed")
		}
		return nil
	}

	var doc models.PortfolioDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		c.logger.Warn().Str("user_id", userID).Str("error", err.Error()).Msg("cache entry corrupt, ignoring")
		return nil
	}
	return &doc
}

// Write replaces the cached snapshot for the user. Failures are logged
// and dropped.
func (c *PortfolioCache) Write(ctx context.Context, userID string, doc *models.PortfolioDocument) {
	if doc == nil {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn().Str("user_id", userID).Str("error", err.Error()).Msg("cache serialization failed")
		return
	}
	if err := c.kv.Set(ctx, cacheKey(userID), string(raw)); err != nil {
		c.logger.Warn().Str("user_id", userID).Str("error", err.Error()).Msg("cache write failed")
	}
}

// Delete removes the cached snapshot for the user. Only the explicit
// sign-out path calls this; stream-driven sign-outs keep the snapshot so
// a fast re-login can fall back to it.
func (c *PortfolioCache) Delete(ctx context.Context, userID string) {
	if err := c.kv.Delete(ctx, cacheKey(userID)); err != nil {
		c.logger.Warn().Str("user_id", userID).Str("error", err.Error()).Msg("cache delete failed")
	}
}
