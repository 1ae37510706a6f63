package app

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"gobandits/domain/arms"
)

// MockScriptRunner is a testify mock of ports.ScriptRunner
type MockScriptRunner struct {
	mock.Mock
}

func (m *MockScriptRunner) Run(ctx context.Context, script arms.Script) (arms.Outcome, error) {
	args := m.Called(ctx, script)
	return args.Get(0).(arms.Outcome), args.Error(1)
}

// MockRunJournal is a testify mock of ports.RunJournal
type MockRunJournal struct {
	mock.Mock
}

func (m *MockRunJournal) Append(ctx context.Context, record arms.StepRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// funcRunner answers every run through fn
type funcRunner func(script arms.Script) arms.Outcome

func (f funcRunner) Run(ctx context.Context, script arms.Script) (arms.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return arms.Outcome{}, err
	}
	return f(script), nil
}

// memRepo keeps a roster in memory, copying on the way in and out
type memRepo struct {
	mu     sync.Mutex
	roster *arms.Roster
	saves  int
}

func newMemRepo(roster *arms.Roster) *memRepo {
	return &memRepo{roster: cloneRoster(roster)}
}

func (r *memRepo) Load(ctx context.Context) (*arms.Roster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRoster(r.roster), nil
}

func (r *memRepo) Save(ctx context.Context, roster *arms.Roster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = cloneRoster(roster)
	r.saves++
	return nil
}

func cloneRoster(roster *arms.Roster) *arms.Roster {
	if roster == nil {
		return nil
	}
	out := &arms.Roster{Scripts: make([]arms.Script, len(roster.Scripts))}
	copy(out.Scripts, roster.Scripts)
	return out
}

func limit(n uint64) *uint64 { return &n }
