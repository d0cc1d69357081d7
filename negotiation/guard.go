package negotiation

// Context 单轮评估的全部输入与中间量，guard 之间通过它传递。
type Context struct {
	Load   LoadContext
	State  State
	Offer  float64
	Tol    Tolerance
	Policy Policy

	// Candidate 是 CounterGenerator 给出的下一口还价；
	// 锚定 guard 可以就地收紧，但绝不放松。
	Candidate float64
}

// Guard 独立的安全检查，可短路整个决策。
// 返回 ok=false 表示放行给下一个 guard。
type Guard interface {
	Name() string
	Check(ctx *Context) (Decision, bool)
}

// Chain 按固定优先级顺序执行 guard，第一个命中者决定结果。
type Chain struct {
	Guards []Guard
}

// DefaultChain 规格规定的优先级：回合上限 → 低价复核 → 接受 → 锚定 → 底线。
func DefaultChain() Chain {
	return Chain{Guards: []Guard{
		roundLimitGuard{},
		confirmLowGuard{},
		acceptGuard{},
		anchorGuard{},
		floorGuard{},
	}}
}

// Evaluate 顺序执行；无人命中则由调用方基于 ctx.Candidate 生成还价。
func (c Chain) Evaluate(ctx *Context) (Decision, bool) {
	for _, g := range c.Guards {
		if g == nil {
			continue
		}
		if d, ok := g.Check(ctx); ok {
			return d, true
		}
	}
	return Decision{}, false
}
