package negotiation

// roundLimitGuard 回合用尽后不再协商：直接 reject，
// 或在启用末轮一口价时复述锚定价（不可再谈）。
type roundLimitGuard struct{}

func (roundLimitGuard) Name() string { return "round-limit" }

func (roundLimitGuard) Check(ctx *Context) (Decision, bool) {
	if ctx.State.Round <= ctx.Policy.MaxRounds {
		return Decision{}, false
	}
	next := ctx.State
	next.Round++
	if ctx.Policy.FinalRoundCounter && ctx.State.PrevCounter > 0 {
		return Decision{
			Kind:        CounterFinal,
			CounterRate: ctx.State.PrevCounter,
			Floor:       ctx.Tol.Floor,
			Next:        next,
		}, true
	}
	return Decision{Kind: Reject, Floor: ctx.Tol.Floor, Next: next}, true
}

// confirmLowGuard 首轮报价低得离谱（多为语音转写错误，"1500" 听成 "500"）时
// 要求调用层复核数字，不产生任何价格移动。
// 产出的 NextState 已推进到第 2 轮，复核后的重新评估不会再次触发本 guard。
type confirmLowGuard struct{}

func (confirmLowGuard) Name() string { return "confirm-low" }

func (confirmLowGuard) Check(ctx *Context) (Decision, bool) {
	if ctx.State.Round != 1 || ctx.Policy.ConfirmLowRatio <= 0 {
		return Decision{}, false
	}
	if ctx.Offer >= ctx.Load.BoardRate*ctx.Policy.ConfirmLowRatio {
		return Decision{}, false
	}
	next := ctx.State
	next.Round = 2
	return Decision{Kind: ConfirmLow, Floor: ctx.Tol.Floor, Next: next}, true
}

// acceptGuard 报价已越过保证金线（floor 按容忍度下探）即接受，与回合无关。
// 报价达到我方上一口还价同样视为成交：对方等于接了我们挂出的数。
type acceptGuard struct{}

func (acceptGuard) Name() string { return "accept" }

func (acceptGuard) Check(ctx *Context) (Decision, bool) {
	ok := ctx.Offer >= ctx.Tol.AcceptThreshold()
	if !ok && ctx.State.PrevCounter > 0 && ctx.Offer >= ctx.State.PrevCounter {
		// 上一口价本身必须是健康的（高于止谈线），污染状态交给底线 guard。
		ok = ctx.State.PrevCounter >= ctx.Load.BoardRate*ctx.Policy.WalkAwayPct
	}
	if !ok {
		return Decision{}, false
	}
	next := ctx.State
	next.Round++
	return Decision{Kind: Accept, Floor: ctx.Tol.Floor, Next: next}, true
}

// anchorGuard 任何新还价不得超过本会话锚定价（已经挂出过的最高价）。
// 只收紧候选价，从不短路。
type anchorGuard struct{}

func (anchorGuard) Name() string { return "anchor" }

func (anchorGuard) Check(ctx *Context) (Decision, bool) {
	if ctx.State.AnchorHigh > 0 && ctx.Candidate > ctx.State.AnchorHigh {
		ctx.Candidate = ctx.State.AnchorHigh
	}
	return Decision{}, false
}

// floorGuard 收紧后的最优还价既低于对方报价、又低于绝对止谈线时，终止协商。
type floorGuard struct{}

func (floorGuard) Name() string { return "floor" }

func (floorGuard) Check(ctx *Context) (Decision, bool) {
	walkAway := ctx.Load.BoardRate * ctx.Policy.WalkAwayPct
	if ctx.Candidate < ctx.Offer && ctx.Candidate < walkAway {
		next := ctx.State
		next.Round++
		return Decision{Kind: Reject, Floor: ctx.Tol.Floor, Next: next}, true
	}
	return Decision{}, false
}
