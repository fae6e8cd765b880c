package conciliation

import (
	"github.com/google/uuid"

	"commission-conciliation-backend/internal/models"
)

// NopAssembler satisfies Assembler when no workbook renderer is wired in;
// the match result is still persisted and downloadable as raw entries.
type NopAssembler struct{}

func (NopAssembler) Assemble(*models.ConciliationJob, *models.MatchResult) error { return nil }

// NopNotifier satisfies Notifier when no mailer is wired in.
type NopNotifier struct{}

func (NopNotifier) JobProcessed(*models.ConciliationJob, *models.MatchResult) error { return nil }

func (NopNotifier) CredentialsExpiring(uuid.UUID, []models.Credential) error { return nil }
