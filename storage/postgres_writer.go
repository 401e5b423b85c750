package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"vendor-desk/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresJournal persists closed lead offers to PostgreSQL.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresJournal.
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &PostgresJournal{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, "migrations")
}

// RecordDecision stores one closed offer. Replays of the same offer are ignored.
func (pj *PostgresJournal) RecordDecision(ctx context.Context, d models.LeadDecision) error {
	_, err := pj.db.ExecContext(ctx, `
		INSERT INTO lead_decisions
			(offer_id, order_id, vendor_phone, action, status_mutated, lead_committed, error, arrived_at, decided_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (offer_id) DO NOTHING
	`, d.OfferID, d.OrderID, d.VendorPhone, d.Action, d.StatusMutated, d.LeadCommitted, d.Error,
		d.ArrivedAt, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("postgres: record decision %s: %w", d.OfferID, err)
	}
	return nil
}

// Recent returns up to limit decisions, newest first.
func (pj *PostgresJournal) Recent(ctx context.Context, limit int) ([]models.LeadDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pj.db.QueryContext(ctx, `
		SELECT offer_id, order_id, vendor_phone, action, status_mutated, lead_committed, error, arrived_at, decided_at
		FROM lead_decisions
		ORDER BY decided_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch recent: %w", err)
	}
	defer rows.Close()

	decisions := []models.LeadDecision{}
	for rows.Next() {
		var d models.LeadDecision
		if err := rows.Scan(
			&d.OfferID, &d.OrderID, &d.VendorPhone, &d.Action, &d.StatusMutated,
			&d.LeadCommitted, &d.Error, &d.ArrivedAt, &d.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func (pj *PostgresJournal) Close() error {
	return pj.db.Close()
}
