package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/utils"
)

// NotesCache caches helpful-notes lookups so repeated requests for the same
// topic do not hit the retrieval service again.
type NotesCache interface {
	Get(ctx context.Context, key string) ([]string, bool)
	Set(ctx context.Context, key string, notes []string)
	Close() error
}

type notesCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewNotesCache(log *logger.Logger) (NotesCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlSec := utils.GetEnvAsInt("NOTES_CACHE_TTL_SECONDS", 900, log)
	if ttlSec <= 0 {
		ttlSec = 900
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &notesCache{
		log: log.With("service", "NotesCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSec) * time.Second,
	}, nil
}

func (c *notesCache) Get(ctx context.Context, key string) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("notes cache get failed", "error", err)
		}
		return nil, false
	}
	var notes []string
	if err := json.Unmarshal(raw, &notes); err != nil {
		c.log.Warn("notes cache payload corrupt", "error", err)
		return nil, false
	}
	return notes, true
}

func (c *notesCache) Set(ctx context.Context, key string, notes []string) {
	raw, err := json.Marshal(notes)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(key), raw, c.ttl).Err(); err != nil {
		c.log.Warn("notes cache set failed", "error", err)
	}
}

func (c *notesCache) Close() error { return c.rdb.Close() }

func cacheKey(key string) string { return "notes:" + key }
