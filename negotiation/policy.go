package negotiation

import "fmt"

// ToleranceStep 里程阶梯：Miles <= UpToMiles 时采用 Pct；UpToMiles 为 0 表示无上限。
type ToleranceStep struct {
	UpToMiles float64 `yaml:"upToMiles"`
	Pct       float64 `yaml:"pct"`
}

// Policy 协商策略参数。全部可按部署调优，默认值见 DefaultPolicy。
type Policy struct {
	MaxRounds           int             `yaml:"maxRounds"`           // 最大回合数
	FloorPct            float64         `yaml:"floorPct"`            // floor = board * floorPct
	ConfirmLowRatio     float64         `yaml:"confirmLowRatio"`     // 首轮报价低于 board*ratio 时要求复述数字
	ConcessionRatio     float64         `yaml:"concessionRatio"`     // 每轮让掉剩余差距的比例
	Tick                float64         `yaml:"tick"`                // 还价取整步长（美元）
	WalkAwayPct         float64         `yaml:"walkAwayPct"`         // 绝对止谈线 = board * walkAwayPct
	SmallBoardThreshold float64         `yaml:"smallBoardThreshold"` // board 低于该值时放宽 floor
	FloorRelaxPct       float64         `yaml:"floorRelaxPct"`       // 放宽幅度（从 floorPct 中扣除）
	FinalRoundCounter   bool            `yaml:"finalRoundCounter"`   // 末轮给 counter-final，否则直接 reject
	MileageTolerance    []ToleranceStep `yaml:"mileageTolerance"`    // 长途容忍度更宽
}

// DefaultPolicy 参考默认值；具体部署应以配置为准。
func DefaultPolicy() Policy {
	return Policy{
		MaxRounds:           3,
		FloorPct:            0.90,
		ConfirmLowRatio:     0.40,
		ConcessionRatio:     0.50,
		Tick:                10,
		WalkAwayPct:         0.50,
		SmallBoardThreshold: 600,
		FloorRelaxPct:       0.02,
		FinalRoundCounter:   true,
		MileageTolerance: []ToleranceStep{
			{UpToMiles: 250, Pct: 0.02},
			{UpToMiles: 750, Pct: 0.04},
			{UpToMiles: 0, Pct: 0.06},
		},
	}
}

// Validate 启动期校验；失败即视为部署错误。
func (p Policy) Validate() error {
	if p.MaxRounds < 1 {
		return fmt.Errorf("%w: maxRounds must be >= 1", ErrConfiguration)
	}
	if p.FloorPct <= 0 || p.FloorPct > 1 {
		return fmt.Errorf("%w: floorPct must be in (0,1]", ErrConfiguration)
	}
	if p.ConfirmLowRatio < 0 || p.ConfirmLowRatio >= p.FloorPct {
		return fmt.Errorf("%w: confirmLowRatio must be in [0, floorPct)", ErrConfiguration)
	}
	if p.ConcessionRatio <= 0 || p.ConcessionRatio >= 1 {
		return fmt.Errorf("%w: concessionRatio must be in (0,1)", ErrConfiguration)
	}
	if p.Tick <= 0 {
		return fmt.Errorf("%w: tick must be > 0", ErrConfiguration)
	}
	if p.WalkAwayPct < 0 || p.WalkAwayPct >= p.FloorPct {
		return fmt.Errorf("%w: walkAwayPct must be in [0, floorPct)", ErrConfiguration)
	}
	if p.FloorRelaxPct < 0 || p.FloorRelaxPct >= p.FloorPct {
		return fmt.Errorf("%w: floorRelaxPct must be in [0, floorPct)", ErrConfiguration)
	}
	if p.SmallBoardThreshold < 0 {
		return fmt.Errorf("%w: smallBoardThreshold must be >= 0", ErrConfiguration)
	}
	if len(p.MileageTolerance) == 0 {
		return fmt.Errorf("%w: mileageTolerance steps are required", ErrConfiguration)
	}
	prev := 0.0
	for i, st := range p.MileageTolerance {
		if st.Pct < 0 || st.Pct >= 1 {
			return fmt.Errorf("%w: mileageTolerance[%d].pct must be in [0,1)", ErrConfiguration, i)
		}
		last := i == len(p.MileageTolerance)-1
		if st.UpToMiles == 0 && !last {
			return fmt.Errorf("%w: only the last mileageTolerance step may be unbounded", ErrConfiguration)
		}
		if st.UpToMiles != 0 {
			if st.UpToMiles <= prev {
				return fmt.Errorf("%w: mileageTolerance steps must be ascending", ErrConfiguration)
			}
			prev = st.UpToMiles
		}
	}
	return nil
}
