package storage

import (
	"context"

	"vendor-desk/models"
)

// OrderExporter is the interface any grouped-order export backend must satisfy.
type OrderExporter interface {
	Export(groups []models.OrderGroup) error
	Close() error
}

// DecisionJournal persists and replays closed lead offers.
type DecisionJournal interface {
	RecordDecision(ctx context.Context, d models.LeadDecision) error
	Recent(ctx context.Context, limit int) ([]models.LeadDecision, error)
	Close() error
}
