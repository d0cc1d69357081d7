package negotiation

import "math"

// NextCounter 计算下一口还价：严格落在对方报价与 floor 之间，
// 每轮让掉剩余差距的固定比例，按 tick 向 floor 方向取整，
// 保证在 MaxRounds 内收敛到成交或底线。
func NextCounter(ctx *Context) float64 {
	start := ctx.Tol.Floor
	if ctx.State.PrevCounter > 0 && ctx.State.PrevCounter < start {
		start = ctx.State.PrevCounter
	}
	// 让步的下界：对方报价，但绝不穿透止谈线。
	// 已复核过的离谱低价不会把我们的还价拖着跳水。
	bottom := ctx.Offer
	if walkAway := ctx.Load.BoardRate * ctx.Policy.WalkAwayPct; bottom < walkAway {
		bottom = walkAway
	}
	gap := start - bottom
	if gap <= 0 {
		// 没有可让的空间；照原价复述，由 guard 层决定去留。
		return roundCents(start)
	}

	c := start - ctx.Policy.ConcessionRatio*gap
	c = snapUp(c, ctx.Tol.Tick)
	if c >= start {
		// 取整吃掉了让步幅度，至少让一跳，否则原地复述。
		if start-ctx.Tol.Tick > ctx.Offer {
			c = start - ctx.Tol.Tick
		} else {
			c = start
		}
	}
	return roundCents(c)
}

// snapUp 向上取整到 tick 的整数倍（朝 floor 方向，让出的价保持人类看得顺的整数）。
func snapUp(v, tick float64) float64 {
	if tick <= 0 {
		return roundCents(v)
	}
	return math.Ceil(v/tick-1e-9) * tick
}
