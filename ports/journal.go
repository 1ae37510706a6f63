package ports

import (
	"context"

	"gobandits/domain/arms"
)

// RunJournal keeps an append-only history of scheduler steps.
type RunJournal interface {
	Append(ctx context.Context, record arms.StepRecord) error
}
