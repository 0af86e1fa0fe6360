package stores

import (
	"context"
	"errors"
	"time"

	"github.com/tidysurv/censored/pkg/model"
)

// ErrNotFound is returned when a fit id is unknown.
var ErrNotFound = errors.New("not found")

// Status is the outcome recorded for a fit or a prediction.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// FitRecord is the listing view of a stored fit. The model itself is only
// decoded by GetFit.
type FitRecord struct {
	ID        string           `json:"id"`
	Family    model.Family     `json:"family"`
	Engine    model.EngineName `json:"engine"`
	Kind      model.EngineKind `json:"kind"`
	Formula   string           `json:"formula"`
	Status    Status           `json:"status"`
	Error     *string          `json:"error,omitempty"`
	Elapsed   time.Duration    `json:"elapsed"`
	FittedAt  time.Time        `json:"fitted_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// PredictionRecord is one entry of the prediction audit trail.
type PredictionRecord struct {
	ID        int64                `json:"id"`
	FitID     string               `json:"fit_id"`
	Type      model.PredictionType `json:"type"`
	Rows      int                  `json:"rows"`
	Multi     bool                 `json:"multi"`
	Penalties []float64            `json:"penalties,omitempty"`
	Status    Status               `json:"status"`
	Error     *string              `json:"error,omitempty"`
	Elapsed   time.Duration        `json:"elapsed"`
	Timestamp time.Time            `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Fit operations
	SaveFit(ctx context.Context, m *model.FittedModel) error
	GetFit(ctx context.Context, id string) (*model.FittedModel, error)
	GetFitRecord(ctx context.Context, id string) (*FitRecord, error)
	ListFits(ctx context.Context, limit, offset int) ([]*FitRecord, error)
	DeleteFit(ctx context.Context, id string) error

	// Prediction audit
	RecordPrediction(ctx context.Context, rec *PredictionRecord) error
	ListPredictions(ctx context.Context, fitID string, limit, offset int) ([]*PredictionRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
