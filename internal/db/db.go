// Package db defines narrow storage interfaces implemented by the redis driver.
package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	SortedSetStore
	SetStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SortedSetStore provides ordered-set operations used for deck card ordering.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int) ([]string, error)
	ZCard(ctx context.Context, key string) (int, error)
	ZRem(ctx context.Context, key string, member string) error
}

// SetStore provides unordered-set operations used for per-user hidden cards.
type SetStore interface {
	SAdd(ctx context.Context, key string, member string) error
	SRem(ctx context.Context, key string, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// IndexField describes a single FT index schema field.
type IndexField struct {
	Name string
	Type FieldType
}

// FieldType is an FT schema field type.
type FieldType string

// Supported FT field types.
const (
	FieldText FieldType = "TEXT"
	FieldTag  FieldType = "TAG"
)

// IndexDefinition describes an FT index over hash keys with the given prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// SearchDoc is a single FT.SEARCH hit with its hash fields.
type SearchDoc struct {
	Key    string
	Fields map[string]string
}

// SearchResult holds FT.SEARCH hits plus the total match count
// (independent of the LIMIT window).
type SearchResult struct {
	Total int
	Docs  []SearchDoc
}

// Searcher provides full-text search over FT indexes.
type Searcher interface {
	SearchText(ctx context.Context, index, query string, offset, limit int) (*SearchResult, error)
}
