package pricing

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/finchops/azreserve/pkg/storage"
)

// QuoteCache is the persisted SKU/region price cache in front of the
// secondary source. It is the single point of deduplication for scrapes
// across a batch, and across batches once saved.
//
// Put is idempotent: repeated puts for one key overwrite. The persistence
// format is opaque to the resolver; only Get/Put matter to it.
//
// Thread-safety: all methods are safe for concurrent use.
type QuoteCache struct {
	logger *slog.Logger
	store  storage.BlobStore
	key    string

	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewQuoteCache creates an empty cache persisted at key in store.
func NewQuoteCache(logger *slog.Logger, store storage.BlobStore, key string) *QuoteCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &QuoteCache{
		logger:  logger,
		store:   store,
		key:     key,
		entries: make(map[string]CacheEntry),
	}
}

// Load reads the persisted mapping. A missing blob yields an empty cache;
// a corrupt one is discarded with a warning. Neither blocks the batch.
func (c *QuoteCache) Load(ctx context.Context) error {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		c.logger.Warn("price cache unreadable, starting empty", "key", c.key, "error", err)
		return nil
	}

	var entries map[string]CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("price cache corrupt, starting empty", "key", c.key, "error", err)
		return nil
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Save persists the current mapping.
func (c *QuoteCache) Save(ctx context.Context) error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return c.store.Put(ctx, c.key, data)
}

// Get returns the cached snapshot for a SKU/region pair.
func (c *QuoteCache) Get(sku, region string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key(sku, region)]
	return e, ok
}

// Put stores a snapshot, overwriting any previous entry for the key.
func (c *QuoteCache) Put(sku, region string, page PageQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(sku, region)] = CacheEntry{
		SKU:       sku,
		Region:    region,
		Page:      page,
		FetchedAt: time.Now().UTC(),
	}
}

// Delete removes a key. Explicit deletion is the only invalidation the
// cache itself supports.
func (c *QuoteCache) Delete(sku, region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key(sku, region))
}

// Len returns the number of cached pairs.
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
