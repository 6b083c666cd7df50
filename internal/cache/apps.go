package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/errdeck/errdeck/pkg/models"
)

// appTTL bounds how stale a cached credential lookup may be. Key
// regeneration and app deletion invalidate explicitly; the TTL only covers
// writes that bypass Invalidate.
const appTTL = 5 * time.Minute

// AppStore is the store slice the cached lookup falls back to.
type AppStore interface {
	GetAppByAPIKey(ctx context.Context, apiKey string) (*models.App, error)
}

// AppLookup resolves API keys to apps through Redis, falling back to the
// store on miss or cache failure. Cache failures never fail a lookup.
type AppLookup struct {
	cache Cache
	store AppStore
}

// NewAppLookup creates an AppLookup.
func NewAppLookup(c Cache, s AppStore) *AppLookup {
	return &AppLookup{cache: c, store: s}
}

// GetAppByAPIKey resolves the credential, consulting the cache first.
func (l *AppLookup) GetAppByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	key := AppByKeyKey(apiKey)

	if data, found, err := l.cache.Get(ctx, key); err != nil {
		slog.Warn("app cache read failed", "error", err)
	} else if found {
		var app models.App
		if err := json.Unmarshal(data, &app); err == nil {
			return &app, nil
		}
		slog.Warn("app cache entry corrupt, refetching", "error", err)
	}

	app, err := l.store.GetAppByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(app); err == nil {
		if err := l.cache.Set(ctx, key, data, appTTL); err != nil {
			slog.Warn("app cache write failed", "error", err)
		}
	}
	return app, nil
}

// Invalidate drops the cached entry for the given API key. Call after key
// regeneration or app mutation so stale credentials stop resolving.
func (l *AppLookup) Invalidate(ctx context.Context, apiKey string) {
	if err := l.cache.Delete(ctx, AppByKeyKey(apiKey)); err != nil {
		slog.Warn("app cache invalidation failed", "error", err)
	}
}
