package store

import (
	"context"

	"github.com/doclab/labrepair-cli/internal/model"
)

// Store defines the persistence interface for structured test records,
// their source documents, and reprocess saga state.
type Store interface {
	// Test records
	ListTestRecords(ctx context.Context, userID string) ([]model.TestRecord, error)
	InsertTestRecord(ctx context.Context, rec *model.TestRecord) (bool, error)
	UpdateTestFields(ctx context.Context, id string, upd model.FieldUpdate) error
	DeleteTestRecord(ctx context.Context, id string) error
	DeleteUserTests(ctx context.Context, userID string) (int, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	// Source documents
	GetMedicalRecord(ctx context.Context, id string) (*model.MedicalRecord, error)
	ListMedicalRecords(ctx context.Context, userID string, limit int) ([]model.MedicalRecord, error)
	InsertMedicalRecord(ctx context.Context, rec *model.MedicalRecord) error

	// Reprocess saga
	CreateReprocessIntent(ctx context.Context, userID string) (*model.ReprocessIntent, error)
	UpdateReprocessIntent(ctx context.Context, intent *model.ReprocessIntent) error
	ListPendingReprocess(ctx context.Context, userID string) ([]model.ReprocessIntent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
