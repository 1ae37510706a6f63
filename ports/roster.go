package ports

import (
	"context"

	"gobandits/domain/arms"
)

// RosterRepository loads and stores the arm roster between invocations.
type RosterRepository interface {
	Load(ctx context.Context) (*arms.Roster, error)
	Save(ctx context.Context, roster *arms.Roster) error
}
