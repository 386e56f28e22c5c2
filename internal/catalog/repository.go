package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads the three reference tables from Postgres.
type PostgresRepository struct {
	db     db
	logger *logging.Logger
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(db db, logger *logging.Logger) *PostgresRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// ListClients returns every client row.
func (r *PostgresRepository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, cliente, division_pais FROM clientes_digix ORDER BY cliente, division_pais NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Subdivision); err != nil {
			return nil, fmt.Errorf("catalog: scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// SearchClients returns client rows whose name contains the term,
// case-insensitively.
func (r *PostgresRepository) SearchClients(ctx context.Context, term string) ([]Client, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, cliente, division_pais FROM clientes_digix
		 WHERE cliente ILIKE '%' || $1 || '%'
		 ORDER BY cliente, division_pais NULLS FIRST`, term)
	if err != nil {
		return nil, fmt.Errorf("catalog: search clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Subdivision); err != nil {
			return nil, fmt.Errorf("catalog: scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListServices returns the full service taxonomy.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, categoria, subcategoria_1, subcategoria_2 FROM servicios
		 ORDER BY categoria, subcategoria_1, subcategoria_2`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Category, &s.Subcategory1, &s.Subcategory2); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// ResolveServiceID looks up the canonical id of a taxonomy leaf. The id is
// re-queried at selection time because cached snapshots can go stale.
func (r *PostgresRepository) ResolveServiceID(ctx context.Context, category, sub1, sub2 string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`SELECT id FROM servicios
		 WHERE categoria = $1 AND subcategoria_1 = $2 AND subcategoria_2 = $3
		 LIMIT 1`, category, sub1, sub2).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("catalog: no service for %s / %s / %s", category, sub1, sub2)
		}
		return 0, fmt.Errorf("catalog: resolve service id: %w", err)
	}
	return id, nil
}

// ListBriefQuestions returns every brief question.
func (r *PostgresRepository) ListBriefQuestions(ctx context.Context) ([]BriefQuestion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, pregunta_texto, pregunta_detalle, categoria, subcategoria_1, subcategoria_2, orden
		 FROM brief_preguntas ORDER BY orden ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list brief questions: %w", err)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// BriefQuestions returns the global questions plus the questions scoped to
// the given service leaf, deduplicated by id and sorted by orden.
func (r *PostgresRepository) BriefQuestions(ctx context.Context, category, sub1, sub2 string) ([]BriefQuestion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, pregunta_texto, pregunta_detalle, categoria, subcategoria_1, subcategoria_2, orden
		 FROM brief_preguntas
		 WHERE categoria IS NULL
		    OR (categoria = $1 AND subcategoria_1 = $2 AND (subcategoria_2 IS NULL OR subcategoria_2 = $3))
		 ORDER BY orden ASC`, category, sub1, sub2)
	if err != nil {
		return nil, fmt.Errorf("catalog: brief questions: %w", err)
	}
	defer rows.Close()

	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	return DedupeQuestions(questions), nil
}

func scanQuestions(rows pgx.Rows) ([]BriefQuestion, error) {
	var out []BriefQuestion
	for rows.Next() {
		var q BriefQuestion
		if err := rows.Scan(&q.ID, &q.Text, &q.Detail, &q.Category, &q.Subcategory1, &q.Subcategory2, &q.Order); err != nil {
			return nil, fmt.Errorf("catalog: scan brief question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
