package api

import (
	"gobandits/domain/arms"
	"gobandits/domain/core"
)

// ArmView is one roster entry as served by GET /arms
type ArmView struct {
	Name          core.ArmName    `json:"name"`
	Command       string          `json:"command"`
	Results       arms.Statistics `json:"results"`
	RunCount      uint64          `json:"runcount"`
	AvgRuntimeMs  arms.Runtime    `json:"avgruntime_ms"`
	Bias          float64         `json:"bias"`
	Limit         *uint64         `json:"limit,omitempty"`
	Eligible      bool            `json:"eligible"`
	PosteriorMean float64         `json:"posterior_mean"`
}

// SelectResponse answers GET /select
type SelectResponse struct {
	RunID    core.RunID    `json:"run_id"`
	Mode     string        `json:"mode"`
	Selected bool          `json:"selected"`
	Index    int           `json:"index"`
	Script   *core.ArmName `json:"script"`
}

// RankResponse answers GET /rank
type RankResponse struct {
	RunID   core.RunID     `json:"run_id"`
	Mode    string         `json:"mode"`
	Order   []int          `json:"order"`
	Scripts []core.ArmName `json:"scripts"`
}

// QuantileResponse answers GET /arms/{name}/quantile
type QuantileResponse struct {
	Script      core.ArmName `json:"script"`
	P           float64      `json:"p"`
	Quantile    float64      `json:"quantile"`
	Approximate bool         `json:"approximate"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
