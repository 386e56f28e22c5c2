package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// Redis keys for the catalog snapshot, one per reference table.
const (
	keyClients   = "cache:clientes"
	keyServices  = "cache:servicios"
	keyQuestions = "cache:preguntas"
)

// ErrCacheMiss indicates a snapshot key is absent and the caller should fall
// back to the source repository.
var ErrCacheMiss = fmt.Errorf("catalog: cache miss")

// Cache holds JSON snapshots of the reference tables in Redis so chat turns
// do not hit Postgres for every lookup.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

// NewCache creates a catalog cache. A zero ttl keeps snapshots until the next
// rebuild overwrites them.
func NewCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if rdb == nil {
		panic("catalog: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("colectiva.internal.catalog.cache"),
		logger: logger,
	}
}

// RebuildCounts reports how many rows each snapshot carries after a rebuild.
type RebuildCounts struct {
	Clients   int `json:"clientes"`
	Services  int `json:"servicios"`
	Questions int `json:"preguntas"`
}

// Source is what a rebuild reads from. Satisfied by PostgresRepository.
type Source interface {
	ListClients(ctx context.Context) ([]Client, error)
	ListServices(ctx context.Context) ([]Service, error)
	ListBriefQuestions(ctx context.Context) ([]BriefQuestion, error)
}

// Rebuild reloads all three reference tables from the source and replaces
// the Redis snapshots.
func (c *Cache) Rebuild(ctx context.Context, repo Source) (RebuildCounts, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.rebuild_cache")
	defer span.End()

	var counts RebuildCounts

	clients, err := repo.ListClients(ctx)
	if err != nil {
		span.RecordError(err)
		return counts, err
	}
	if err := c.set(ctx, keyClients, clients); err != nil {
		span.RecordError(err)
		return counts, err
	}
	counts.Clients = len(clients)

	services, err := repo.ListServices(ctx)
	if err != nil {
		span.RecordError(err)
		return counts, err
	}
	if err := c.set(ctx, keyServices, services); err != nil {
		span.RecordError(err)
		return counts, err
	}
	counts.Services = len(services)

	questions, err := repo.ListBriefQuestions(ctx)
	if err != nil {
		span.RecordError(err)
		return counts, err
	}
	if err := c.set(ctx, keyQuestions, questions); err != nil {
		span.RecordError(err)
		return counts, err
	}
	counts.Questions = len(questions)

	c.logger.Info("catalog cache rebuilt",
		"clientes", counts.Clients,
		"servicios", counts.Services,
		"preguntas", counts.Questions,
	)
	return counts, nil
}

// Clients returns the cached client snapshot.
func (c *Cache) Clients(ctx context.Context) ([]Client, error) {
	var out []Client
	if err := c.get(ctx, keyClients, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Services returns the cached service snapshot.
func (c *Cache) Services(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := c.get(ctx, keyServices, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Questions returns the cached brief question snapshot.
func (c *Cache) Questions(ctx context.Context) ([]BriefQuestion, error) {
	var out []BriefQuestion
	if err := c.get(ctx, keyQuestions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("catalog: persist %s: %w", key, err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string, out any) error {
	ctx, span := c.tracer.Start(ctx, "catalog.cache_read")
	defer span.End()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		span.RecordError(err)
		return fmt.Errorf("catalog: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("catalog: decode %s: %w", key, err)
	}
	return nil
}
