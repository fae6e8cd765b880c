// Package retrieval defines the contract with the per-provider retrieval
// adapters (the browser-automation side, out of scope here) and reads back
// the raw export files they deposit.
package retrieval

import (
	"context"

	"commission-conciliation-backend/internal/models"
)

// Adapter runs one long-running retrieval for an agent credential. It
// deposits raw export files under <downloads>/<job id>/<agent id>/ and
// returns the activity trail of the run. Implementations must bound their
// own execution time: the scheduler marks overdue items failed but cannot
// interrupt a call in flight.
type Adapter interface {
	Execute(ctx context.Context, job *models.ConciliationJob, credential *models.Credential) ([]models.Activity, error)
}

// Registry maps each provider to its adapter.
type Registry map[models.Provider]Adapter

func (r Registry) For(provider models.Provider) (Adapter, bool) {
	a, ok := r[provider]
	return a, ok
}
