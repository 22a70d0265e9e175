package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrAmenityNotFound indicates no amenity exists with the requested id.
var ErrAmenityNotFound = errors.New("amenity not found")

// Querier defines the vector-store operations the Searcher depends on.
// Following Go best practices: interfaces are defined by the consumer, not
// the provider (similar to http.RoundTripper, io.Reader).
type Querier interface {
	// SearchAmenities returns amenities ranked by cosine similarity to the
	// query embedding, excluding everything at or below threshold.
	SearchAmenities(ctx context.Context, embedding []float32, threshold float32, limit int) ([]ScoredAmenity, error)

	// GetAmenity returns the amenity with the given id, or
	// ErrAmenityNotFound.
	GetAmenity(ctx context.Context, id int64) (*Amenity, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// searchAmenitiesSQL ranks amenities by cosine similarity.
// The threshold filter runs inside the store; callers never post-filter.
const searchAmenitiesSQL = `
	SELECT id, name, description, location, terminal, category, hour, similarity
	FROM (
		SELECT id, name, description, location, terminal, category, hour,
		       1 - (embedding <=> $1) AS similarity
		FROM amenities
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY similarity DESC
		LIMIT $3
	) AS ranked_amenities
`

// getAmenitySQL fetches one amenity by primary key.
const getAmenitySQL = `
	SELECT id, name, description, location, terminal, category, hour, content
	FROM amenities
	WHERE id = $1
`

// Store is the PostgreSQL/pgvector implementation of Querier.
// Safe for concurrent use; the pool handles connection management.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SearchAmenities implements Querier.
func (s *Store) SearchAmenities(ctx context.Context, embedding []float32, threshold float32, limit int) ([]ScoredAmenity, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, searchAmenitiesSQL, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("searching amenities: %w", err)
	}
	defer rows.Close()

	var results []ScoredAmenity
	for rows.Next() {
		var a ScoredAmenity
		var similarity float64
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Description, &a.Location,
			&a.Terminal, &a.Category, &a.Hour, &similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning amenity row: %w", err)
		}
		a.Similarity = float32(similarity)
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading amenity rows: %w", err)
	}

	return results, nil
}

// GetAmenity implements Querier.
func (s *Store) GetAmenity(ctx context.Context, id int64) (*Amenity, error) {
	var a Amenity
	err := s.pool.QueryRow(ctx, getAmenitySQL, id).Scan(
		&a.ID, &a.Name, &a.Description, &a.Location,
		&a.Terminal, &a.Category, &a.Hour, &a.Content,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrAmenityNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching amenity %d: %w", id, err)
	}
	return &a, nil
}

// Ping implements Querier.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging amenity store: %w", err)
	}
	return nil
}
