package extractor

import (
	"context"
	"fmt"
	"testing"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	cache := newMemoryCache()
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown fingerprint")
	}

	facts := []models.SchemaFact{{Description: "One row per order."}}
	cache.Set(ctx, "fp-1", facts)

	got, ok := cache.Get(ctx, "fp-1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(got) != 1 || got[0].Description != "One row per order." {
		t.Errorf("unexpected cached facts: %+v", got)
	}
}

func TestMemoryCache_Bounded(t *testing.T) {
	cache := newMemoryCache()
	ctx := context.Background()

	for i := 0; i < maxMemoryEntries+5; i++ {
		cache.Set(ctx, fmt.Sprintf("fp-%d", i), nil)
	}

	if len(cache.entries) != maxMemoryEntries {
		t.Errorf("expected %d entries, got %d", maxMemoryEntries, len(cache.entries))
	}
	// Oldest entries are evicted first.
	if _, ok := cache.Get(ctx, "fp-0"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get(ctx, fmt.Sprintf("fp-%d", maxMemoryEntries+4)); !ok {
		t.Error("expected newest entry to survive")
	}
}

func TestMemoryCache_SetSameKeyTwice(t *testing.T) {
	cache := newMemoryCache()
	ctx := context.Background()

	cache.Set(ctx, "fp", []models.SchemaFact{{Description: "v1"}})
	cache.Set(ctx, "fp", []models.SchemaFact{{Description: "v2"}})

	got, ok := cache.Get(ctx, "fp")
	if !ok || got[0].Description != "v2" {
		t.Errorf("expected latest value, got %+v", got)
	}
	if len(cache.order) != 1 {
		t.Errorf("re-set must not duplicate eviction order, got %d entries", len(cache.order))
	}
}
