package negotiation

import (
	"fmt"
	"math"
)

// Tolerance 由货源属性与策略推导出的接受带与价格底线。
// 对同一 LoadContext 与 Policy 的计算结果是确定的。
type Tolerance struct {
	Floor        float64 // 最低可成交价
	TolerancePct float64 // 接受带宽度，长途更宽
	Tick         float64 // 还价取整步长
}

// ComputeTolerance 推导接受带。board <= 0 属配置/调用方缺陷而非业务分支。
func ComputeTolerance(load LoadContext, p Policy) (Tolerance, error) {
	if err := p.Validate(); err != nil {
		return Tolerance{}, err
	}
	if load.BoardRate <= 0 || math.IsNaN(load.BoardRate) || math.IsInf(load.BoardRate, 0) {
		return Tolerance{}, fmt.Errorf("%w: board rate %v", ErrConfiguration, load.BoardRate)
	}

	pct := p.FloorPct
	// 小票货允许略低于名义 floor 成交（净收益仍划算）。
	if p.SmallBoardThreshold > 0 && load.BoardRate <= p.SmallBoardThreshold {
		pct -= p.FloorRelaxPct
	}
	floor := roundCents(load.BoardRate * pct)
	if floor > load.BoardRate {
		floor = load.BoardRate
	}

	return Tolerance{
		Floor:        floor,
		TolerancePct: toleranceForMiles(load.Miles, p.MileageTolerance),
		Tick:         p.Tick,
	}, nil
}

// AcceptThreshold 可直接接受的最低报价：floor 再按容忍度下探。
func (t Tolerance) AcceptThreshold() float64 {
	return roundCents(t.Floor * (1 - t.TolerancePct))
}

// toleranceForMiles 取第一个覆盖该里程的阶梯；里程未知按最窄档处理。
func toleranceForMiles(miles float64, steps []ToleranceStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	if miles <= 0 {
		return steps[0].Pct
	}
	for _, st := range steps {
		if st.UpToMiles == 0 || miles <= st.UpToMiles {
			return st.Pct
		}
	}
	return steps[len(steps)-1].Pct
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
