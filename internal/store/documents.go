package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/models"
)

const (
	ConfigKey      = "app_config_v1"
	LookupCacheKey = "lookup_cache_v1"
)

// loadJSON decodes the document under key into v. It reports false when
// the key is absent or the stored payload does not decode; the latter is
// logged and otherwise treated as absence.
func (s *Store) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.LogWarn(s.logger, "ignoring undecodable stored document", err, slog.String("key", key))
		return false, nil
	}
	return true, nil
}

func (s *Store) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Save(ctx, key, data)
}

// ConfigStore holds the single saved WidgetConfig. Listeners registered
// with OnChange run after every successful Save or Clear.
type ConfigStore struct {
	store *Store

	mu        sync.Mutex
	listeners []func()
}

func NewConfigStore(s *Store) *ConfigStore {
	return &ConfigStore{store: s}
}

// Load returns the saved config, or nil when none is saved or the saved
// payload is unreadable.
func (c *ConfigStore) Load(ctx context.Context) (*models.WidgetConfig, error) {
	var cfg models.WidgetConfig
	ok, err := c.store.loadJSON(ctx, ConfigKey, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConfigStore) Save(ctx context.Context, cfg models.WidgetConfig) error {
	if err := c.store.saveJSON(ctx, ConfigKey, cfg); err != nil {
		return err
	}
	c.notify()
	return nil
}

func (c *ConfigStore) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx, ConfigKey); err != nil {
		return err
	}
	c.notify()
	return nil
}

// OnChange registers fn to run after the saved config changes.
func (c *ConfigStore) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *ConfigStore) notify() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// LookupCacheStore holds the single LookupCache.
type LookupCacheStore struct {
	store *Store
}

func NewLookupCacheStore(s *Store) *LookupCacheStore {
	return &LookupCacheStore{store: s}
}

// Load returns the cache, or nil when none is stored or it is unreadable.
func (l *LookupCacheStore) Load(ctx context.Context) (*models.LookupCache, error) {
	var cache models.LookupCache
	ok, err := l.store.loadJSON(ctx, LookupCacheKey, &cache)
	if err != nil || !ok {
		return nil, err
	}
	return &cache, nil
}

func (l *LookupCacheStore) Save(ctx context.Context, cache models.LookupCache) error {
	return l.store.saveJSON(ctx, LookupCacheKey, cache)
}

func (l *LookupCacheStore) Clear(ctx context.Context) error {
	return l.store.Clear(ctx, LookupCacheKey)
}
