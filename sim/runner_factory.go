package sim

import (
	"rate-desk-go/negotiation"
)

// RunnerConfig 描述 Runner 的可选参数；零值字段沿用默认策略。
type RunnerConfig struct {
	SessionID string

	MaxRounds       int
	FloorPct        float64
	ConfirmLowRatio float64
	ConcessionRatio float64
	Tick            float64
	WalkAwayPct     float64

	Journal Recorder
}

// BuildRunner 基于配置快速组装 Runner（内存组件，适合离线回放）。
func BuildRunner(cfg RunnerConfig) (*Runner, error) {
	policy := negotiation.DefaultPolicy()
	if cfg.MaxRounds > 0 {
		policy.MaxRounds = cfg.MaxRounds
	}
	if cfg.FloorPct > 0 {
		policy.FloorPct = cfg.FloorPct
	}
	if cfg.ConfirmLowRatio > 0 {
		policy.ConfirmLowRatio = cfg.ConfirmLowRatio
	}
	if cfg.ConcessionRatio > 0 {
		policy.ConcessionRatio = cfg.ConcessionRatio
	}
	if cfg.Tick > 0 {
		policy.Tick = cfg.Tick
	}
	if cfg.WalkAwayPct > 0 {
		policy.WalkAwayPct = cfg.WalkAwayPct
	}

	neg, err := negotiation.New(policy)
	if err != nil {
		return nil, err
	}
	return &Runner{
		SessionID: cfg.SessionID,
		Neg:       neg,
		Journal:   cfg.Journal,
	}, nil
}
