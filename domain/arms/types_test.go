package arms

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobandits/domain/core"
)

func limit(n uint64) *uint64 { return &n }

func TestStatistics_Posterior(t *testing.T) {
	s := Statistics{Interesting: 3, Uninteresting: 7}
	assert.Equal(t, 4.0, s.Alpha())
	assert.Equal(t, 8.0, s.Beta())
	assert.InDelta(t, 4.0/12.0, s.PosteriorMean(), 1e-12)
	assert.Equal(t, uint64(10), s.Trials())

	// an untouched arm is the uniform prior
	assert.Equal(t, 0.5, Statistics{}.PosteriorMean())
}

func TestScript_Record(t *testing.T) {
	s := NewScript("parser", "./fuzz parser")

	s.Record(Outcome{Uninteresting: 1, Duration: 100 * time.Millisecond})
	s.Record(Outcome{Interesting: 1, Duration: 300 * time.Millisecond})
	// unclassified outcome still contributes to runtime
	s.Record(Outcome{Duration: 200 * time.Millisecond, ExitCode: 2})

	assert.Equal(t, Statistics{Interesting: 1, Uninteresting: 1}, s.Results)
	assert.Equal(t, uint64(3), s.RunCount)
	ms, ok := s.AvgRuntimeMs.Get()
	require.True(t, ok)
	assert.InDelta(t, 200.0, ms, 1e-9)
}

func TestScript_Reset(t *testing.T) {
	s := NewScript("parser", "./fuzz parser")
	s.Record(Outcome{Interesting: 1, Duration: time.Second})
	s.Reset()

	assert.Equal(t, Statistics{}, s.Results)
	assert.Zero(t, s.RunCount)
	assert.False(t, s.AvgRuntimeMs.Known())
	assert.Equal(t, 1.0, s.Bias, "reset keeps user bias")
}

func TestScript_Eligible(t *testing.T) {
	s := NewScript("a", "true")
	assert.True(t, s.Eligible(), "no limit")

	s.Limit = limit(2)
	s.Results.Interesting = 1
	assert.True(t, s.Eligible())

	s.Results.Interesting = 2
	assert.False(t, s.Eligible(), "limit reached")

	s.Limit = limit(0)
	s.Results.Interesting = 0
	assert.False(t, s.Eligible(), "limit zero never runs")
}

func TestRuntime_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Known   Runtime `json:"known"`
		Unknown Runtime `json:"unknown"`
	}{RuntimeOf(12.5), UnknownRuntime})
	require.NoError(t, err)
	assert.JSONEq(t, `{"known":12.5,"unknown":null}`, string(data))

	var decoded struct {
		Known   Runtime `json:"known"`
		Unknown Runtime `json:"unknown"`
		Missing Runtime `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"known":7,"unknown":null}`), &decoded))
	ms, ok := decoded.Known.Get()
	assert.True(t, ok)
	assert.Equal(t, 7.0, ms)
	assert.False(t, decoded.Unknown.Known())
	assert.False(t, decoded.Missing.Known())

	assert.Error(t, json.Unmarshal([]byte(`{"known":"fast"}`), &decoded))
}

func TestScript_JSONFieldNames(t *testing.T) {
	raw := `{
		"name": "parser",
		"command": "./fuzz parser",
		"results": {"interesting": 2, "uninteresting": 5},
		"runcount": 7,
		"avgruntime_ms": 41.5,
		"bias": 2,
		"limit": 10
	}`
	var s Script
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.Equal(t, core.ArmName("parser"), s.Name)
	assert.Equal(t, Statistics{Interesting: 2, Uninteresting: 5}, s.Results)
	assert.Equal(t, uint64(7), s.RunCount)
	assert.Equal(t, "41.5ms", s.AvgRuntimeMs.String())
	require.NotNil(t, s.Limit)
	assert.Equal(t, uint64(10), *s.Limit)
}

func TestRoster_Validate(t *testing.T) {
	tests := []struct {
		name    string
		roster  Roster
		wantErr error
	}{
		{"valid", Roster{Scripts: []Script{NewScript("a", "true"), NewScript("b", "false")}}, nil},
		{"empty roster", Roster{}, nil},
		{"duplicate", Roster{Scripts: []Script{NewScript("a", "true"), NewScript("a", "false")}}, core.ErrDuplicateArm},
		{"no command", Roster{Scripts: []Script{NewScript("a", "")}}, core.ErrInvalidRoster},
		{"no name", Roster{Scripts: []Script{NewScript("", "true")}}, core.ErrInvalidRoster},
		{"negative bias", Roster{Scripts: []Script{{Name: "a", Command: "true", Bias: -1}}}, core.ErrInvalidBias},
		{"nan bias", Roster{Scripts: []Script{{Name: "a", Command: "true", Bias: math.NaN()}}}, core.ErrInvalidBias},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.roster.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoster_CandidatesMapsBackToRosterIndex(t *testing.T) {
	r, err := NewRoster([]Mapping{{"a", "true"}, {"b", "true"}, {"c", "true"}})
	require.NoError(t, err)
	r.Scripts[1].Limit = limit(0)

	cands, index := r.Candidates(Eligible)
	assert.Len(t, cands, 2)
	assert.Equal(t, []int{0, 2}, index)

	all, index := r.Candidates(nil)
	assert.Len(t, all, 3)
	assert.Equal(t, []int{0, 1, 2}, index)
}

func TestRoster_Find(t *testing.T) {
	r, err := NewRoster([]Mapping{{"a", "true"}, {"b", "true"}})
	require.NoError(t, err)

	i, err := r.Find("b")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = r.Find("zzz")
	assert.ErrorIs(t, err, core.ErrArmNotFound)
}
