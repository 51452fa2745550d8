package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/address-analyzer/internal/types"
)

// dbtx is the subset of pgxpool.Pool the repository uses
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AnalysisRepository stores an audit row for every analysis the service returns
type AnalysisRepository struct {
	db dbtx
}

// NewAnalysisRepository creates a repository over a connected database
func NewAnalysisRepository(db *PostgresDB) *AnalysisRepository {
	return &AnalysisRepository{db: db.Pool()}
}

// Record inserts a row, assigning its id and timestamp when unset
func (r *AnalysisRepository) Record(ctx context.Context, rec *types.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Address = types.NormalizeAddress(rec.Address)

	query := `
		INSERT INTO analysis_results (id, address, category, explanation, source, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.Address,
		rec.Category,
		rec.Explanation,
		string(rec.Source),
		rec.Model,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis record: %w", err)
	}
	return nil
}

// ListByAddress returns the newest records for address first
func (r *AnalysisRepository) ListByAddress(ctx context.Context, address string, limit int) ([]*types.AnalysisRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, address, category, explanation, source, model, created_at
		FROM analysis_results
		WHERE address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, types.NormalizeAddress(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis records: %w", err)
	}
	defer rows.Close()

	records := make([]*types.AnalysisRecord, 0)
	for rows.Next() {
		var (
			rec    types.AnalysisRecord
			source string
		)
		if err := rows.Scan(&rec.ID, &rec.Address, &rec.Category, &rec.Explanation, &source, &rec.Model, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis record: %w", err)
		}
		rec.Source = types.AnalysisSource(source)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis records: %w", err)
	}
	return records, nil
}
