package persistence

import (
	"time"

	"dca-backtest-go/internal/models"
)

// ArchivedRun is the envelope stored for one completed backtest run.
// Exactly one of Single or Portfolio is set, depending on the run mode.
type ArchivedRun struct {
	RunID     string                  `json:"run_id"`
	SavedAt   time.Time               `json:"saved_at"`
	Mode      string                  `json:"mode"` // "single" or "portfolio"
	Single    *models.SingleResult    `json:"single,omitempty"`
	Portfolio *models.PortfolioResult `json:"portfolio,omitempty"`
}

// ResultRepository defines the interface for archiving backtest results.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type ResultRepository interface {
	// SaveRun atomically archives one completed run under its run ID.
	SaveRun(run *ArchivedRun) error

	// LoadRun loads an archived run by ID.
	// If no run is found, it returns (nil, nil).
	LoadRun(runID string) (*ArchivedRun, error)

	// ListRuns returns the IDs of all archived runs, sorted ascending.
	ListRuns() ([]string, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
