package repository

import (
	"context"
	"fmt"

	"imss/harvester/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordRepository mirrors harvested contracts into Postgres
type RecordRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveRecord(ctx context.Context, record *domain.Record) error
}

type recordRepository struct {
	db *pgxpool.Pool
}

func NewRecordRepository(db *pgxpool.Pool) RecordRepository {
	return &recordRepository{
		db: db,
	}
}

func (r *recordRepository) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS contracts (
		id          TEXT PRIMARY KEY,
		period      TEXT NOT NULL,
		tree_path   TEXT NOT NULL,
		amount      NUMERIC,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create contracts table: %w", err)
	}
	return nil
}

func (r *recordRepository) SaveRecord(ctx context.Context, record *domain.Record) error {
	query := `
	INSERT INTO contracts (id, period, tree_path, amount, data)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id)
	DO UPDATE SET period = $2, tree_path = $3, amount = $4, data = $5`

	_, err := r.db.Exec(ctx, query, record.ID.String(), record.Period, record.Path().String(), record.Amount, record)
	if err != nil {
		return fmt.Errorf("failed to save contract %s: %w", record.ID, err)
	}

	return nil
}
