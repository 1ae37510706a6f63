package postgres

import (
	"context"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobandits/adapters/db/postgres/migrations"
	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal/errors"
)

func TestScriptRowConversion(t *testing.T) {
	limit := uint64(4)
	script := arms.Script{
		Name:         "parser",
		Command:      "./fuzz.sh parser",
		Results:      arms.Statistics{Interesting: 2, Uninteresting: 9},
		RunCount:     11,
		AvgRuntimeMs: arms.RuntimeOf(87.5),
		Bias:         1.5,
		Limit:        &limit,
	}

	row, err := fromScript("nightly", 3, script)
	require.NoError(t, err)
	assert.Equal(t, "nightly", row.RosterName)
	assert.Equal(t, 3, row.Position)
	assert.True(t, row.AvgRuntimeMs.Valid)
	assert.True(t, row.LimitInteresting.Valid)
	assert.Equal(t, script, row.toScript())

	fresh := arms.NewScript("lexer", "true")
	row, err = fromScript("nightly", 0, fresh)
	require.NoError(t, err)
	assert.False(t, row.AvgRuntimeMs.Valid)
	assert.False(t, row.LimitInteresting.Valid)
	assert.Equal(t, fresh, row.toScript())
}

func TestScriptRowRejectsOversizedCounters(t *testing.T) {
	script := arms.NewScript("big", "true")
	script.Results.Interesting = math.MaxUint64

	_, err := fromScript("r", 0, script)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("BANDITS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BANDITS_TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.NewMigrator(db.DB, io.Discard).Up(context.Background()))
	return db
}

func TestRosterRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	name := "test-" + core.NewID().String()
	repo := NewRosterRepository(db, name)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM bandit_rosters WHERE name = $1`, name)
	})

	_, err := repo.Load(ctx)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	roster, err := arms.NewRoster([]arms.Mapping{
		{Name: "a", Command: "true"},
		{Name: "b", Command: "false"},
	})
	require.NoError(t, err)
	roster.Scripts[0].Record(arms.Outcome{Uninteresting: 1, Duration: 20 * time.Millisecond})
	require.NoError(t, repo.Save(ctx, roster))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, roster, loaded)

	// saving again replaces the scripts
	roster.Scripts = roster.Scripts[:1]
	require.NoError(t, repo.Save(ctx, roster))
	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Scripts, 1)

	require.NoError(t, repo.Append(ctx, arms.StepRecord{
		RunID:   core.NewRunID(),
		Step:    0,
		Script:  "a",
		Outcome: arms.Outcome{Interesting: 1, Duration: time.Second, ExitCode: 1},
	}))
	n, err := repo.StepCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
