package store

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/transit"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestOpenMemoryUsesSingleConnection(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, 1, s.DB.Stats().MaxOpenConnections)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestBlobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte("one")))
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, s.Save(ctx, "k", []byte("two")))
	got, err = s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	require.NoError(t, s.Clear(ctx, "k"))
	_, err = s.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Clear(ctx, "k"), "clearing an absent key")
}

func TestEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.Save(ctx, "older", []byte("abc")))
	s.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, s.Save(ctx, "newer", []byte("a")))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "newer", entries[0].Key)
	assert.Equal(t, 1, entries[0].Size)
	assert.Equal(t, "older", entries[1].Key)
	assert.Equal(t, 3, entries[1].Size)
	assert.True(t, entries[1].UpdatedAt.Equal(base))
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ikuyo.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestConfigStore(t *testing.T) {
	s := openTestStore(t)
	cs := NewConfigStore(s)
	ctx := context.Background()

	var changes atomic.Int32
	cs.OnChange(func() { changes.Add(1) })

	cfg, err := cs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	want := models.WidgetConfig{
		ProviderID:      "mvv",
		StopID:          "de:09162:2",
		StopName:        "Marienplatz",
		RouteIDs:        []string{"S1"},
		RefreshInterval: 2,
		AlwaysOnTop:     true,
	}
	require.NoError(t, cs.Save(ctx, want))
	assert.Equal(t, int32(1), changes.Load())

	cfg, err = cs.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, want, *cfg)

	raw, err := s.Load(ctx, ConfigKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"providerId":"mvv"`)

	require.NoError(t, cs.Clear(ctx))
	assert.Equal(t, int32(2), changes.Load())
	cfg, err = cs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestConfigStoreCorruptPayloadIsAbsent(t *testing.T) {
	s := openTestStore(t)
	cs := NewConfigStore(s)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, ConfigKey, []byte(`{not json`)))
	cfg, err := cs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	// well-formed JSON missing a required field
	require.NoError(t, s.Save(ctx, ConfigKey, []byte(`{"providerId":"mvv"}`)))
	cfg, err = cs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLookupCacheStore(t *testing.T) {
	s := openTestStore(t)
	ls := NewLookupCacheStore(s)
	ctx := context.Background()

	cache, err := ls.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cache)

	stop := transit.Stop{ID: "de:09162:2", Name: "Marienplatz", Lat: 48.137, Lon: 11.575, LocationType: transit.LocationStop}
	want := models.LookupCache{
		ProviderID:      "mvv",
		StopQuery:       "marien",
		StopResults:     []transit.Stop{stop},
		SelectedStop:    &stop,
		AvailableRoutes: []transit.Route{{ID: "S1", ShortName: "S1", Type: transit.RouteSubway, SortOrder: transit.NoSortOrder}},
	}
	require.NoError(t, ls.Save(ctx, want))

	cache, err = ls.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.Equal(t, want, *cache)

	require.NoError(t, ls.Clear(ctx))
	cache, err = ls.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cache)
}
