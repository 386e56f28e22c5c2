package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/match"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// Store is the read surface the dialogue engines depend on.
type Store interface {
	// SearchClients returns client rows whose name fuzzy-contains the term.
	SearchClients(ctx context.Context, term string) ([]Client, error)
	// ListClients returns every client row, used for suggestion lists.
	ListClients(ctx context.Context) ([]Client, error)
	// ListServices returns the full taxonomy.
	ListServices(ctx context.Context) ([]Service, error)
	// ListCategories returns the distinct top-level categories, sorted.
	ListCategories(ctx context.Context) ([]string, error)
	// ResolveServiceID re-queries the canonical id for a taxonomy leaf.
	ResolveServiceID(ctx context.Context, category, sub1, sub2 string) (int64, error)
	// BriefQuestions returns global plus leaf-scoped questions ordered by orden.
	BriefQuestions(ctx context.Context, category, sub1, sub2 string) ([]BriefQuestion, error)
}

// CachedStore serves reads from the Redis snapshot when available and falls
// back to Postgres on a miss or cache error. With a nil cache every read goes
// straight to Postgres.
type CachedStore struct {
	repo    *PostgresRepository
	cache   *Cache
	timeout time.Duration
	logger  *logging.Logger
}

// NewCachedStore creates the store. cache may be nil.
func NewCachedStore(repo *PostgresRepository, cache *Cache, timeout time.Duration, logger *logging.Logger) *CachedStore {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CachedStore{repo: repo, cache: cache, timeout: timeout, logger: logger}
}

var _ Store = (*CachedStore)(nil)

func (s *CachedStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// SearchClients filters the cached snapshot by normalized containment; on a
// cache miss it delegates to an ILIKE query.
func (s *CachedStore) SearchClients(ctx context.Context, term string) ([]Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if s.cache != nil {
		clients, err := s.cache.Clients(ctx)
		if err == nil {
			return filterClients(clients, term), nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("catalog: client cache read failed, using database", "error", err)
		}
	}
	return s.repo.SearchClients(ctx, term)
}

func filterClients(clients []Client, term string) []Client {
	normTerm := match.Normalize(term)
	if normTerm == "" {
		return nil
	}
	var out []Client
	for _, c := range clients {
		if strings.Contains(match.Normalize(c.Name), normTerm) {
			out = append(out, c)
		}
	}
	return out
}

// ListClients returns every client row.
func (s *CachedStore) ListClients(ctx context.Context) ([]Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if s.cache != nil {
		if clients, err := s.cache.Clients(ctx); err == nil {
			return clients, nil
		}
	}
	return s.repo.ListClients(ctx)
}

// ListServices returns the full taxonomy.
func (s *CachedStore) ListServices(ctx context.Context) ([]Service, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if s.cache != nil {
		if services, err := s.cache.Services(ctx); err == nil {
			return services, nil
		}
	}
	return s.repo.ListServices(ctx)
}

// ListCategories derives the distinct categories from the taxonomy.
func (s *CachedStore) ListCategories(ctx context.Context) ([]string, error) {
	services, err := s.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(services))
	var cats []string
	for _, svc := range services {
		if _, ok := seen[svc.Category]; ok {
			continue
		}
		seen[svc.Category] = struct{}{}
		cats = append(cats, svc.Category)
	}
	sort.Strings(cats)
	return cats, nil
}

// ResolveServiceID always asks Postgres; snapshot ids can be stale.
func (s *CachedStore) ResolveServiceID(ctx context.Context, category, sub1, sub2 string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.repo.ResolveServiceID(ctx, category, sub1, sub2)
}

// BriefQuestions filters the cached snapshot when present, otherwise queries.
func (s *CachedStore) BriefQuestions(ctx context.Context, category, sub1, sub2 string) ([]BriefQuestion, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if s.cache != nil {
		questions, err := s.cache.Questions(ctx)
		if err == nil {
			return ScopeQuestions(questions, category, sub1, sub2), nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("catalog: question cache read failed, using database", "error", err)
		}
	}
	return s.repo.BriefQuestions(ctx, category, sub1, sub2)
}

// ScopeQuestions selects the global questions plus the ones scoped to the
// leaf, deduplicated by id and sorted by ascending orden.
func ScopeQuestions(all []BriefQuestion, category, sub1, sub2 string) []BriefQuestion {
	var out []BriefQuestion
	for _, q := range all {
		if q.Global() {
			out = append(out, q)
			continue
		}
		if q.Category != nil && *q.Category == category &&
			q.Subcategory1 != nil && *q.Subcategory1 == sub1 &&
			(q.Subcategory2 == nil || *q.Subcategory2 == sub2) {
			out = append(out, q)
		}
	}
	out = DedupeQuestions(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// DedupeQuestions removes duplicate ids, keeping first occurrence.
func DedupeQuestions(questions []BriefQuestion) []BriefQuestion {
	seen := make(map[int64]struct{}, len(questions))
	out := questions[:0:0]
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}
