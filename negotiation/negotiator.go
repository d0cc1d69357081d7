package negotiation

import (
	"fmt"
	"math"
)

// Negotiator 对外唯一的决策入口。纯函数语义：无共享可变状态、无 IO，
// 可被任意并发调用；跨回合所需的一切都显式进出参传递。
type Negotiator struct {
	policy Policy
	chain  Chain
}

// New 构造 Negotiator；策略非法即失败（部署期错误，不应拖到请求期）。
func New(policy Policy) (*Negotiator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Negotiator{policy: policy, chain: DefaultChain()}, nil
}

// Policy 返回当前策略快照。
func (n *Negotiator) Policy() Policy {
	return n.policy
}

// Evaluate 评估一轮报价。对相同输入的重复调用产出相同 Decision。
// 返回的 Decision.Next 必须由调用方在下一轮前持久化。
func (n *Negotiator) Evaluate(load LoadContext, state State, offer float64) (Decision, error) {
	if err := validateInput(load, state, offer); err != nil {
		return Decision{}, err
	}

	tol, err := ComputeTolerance(load, n.policy)
	if err != nil {
		return Decision{}, err
	}

	ctx := &Context{
		Load:   load,
		State:  state,
		Offer:  offer,
		Tol:    tol,
		Policy: n.policy,
	}
	ctx.Candidate = NextCounter(ctx)

	if d, ok := n.chain.Evaluate(ctx); ok {
		return d, nil
	}

	kind := Counter
	if state.Round >= n.policy.MaxRounds {
		// 末轮：一口价，不再开新回合。
		kind = CounterFinal
		if !n.policy.FinalRoundCounter {
			next := state
			next.Round++
			return Decision{Kind: Reject, Floor: tol.Floor, Next: next}, nil
		}
	}

	rate := roundCents(ctx.Candidate)
	next := State{
		Round:       state.Round + 1,
		PrevCounter: rate,
		AnchorHigh:  math.Max(state.AnchorHigh, rate),
	}
	return Decision{Kind: kind, CounterRate: rate, Floor: tol.Floor, Next: next}, nil
}

func validateInput(load LoadContext, state State, offer float64) error {
	if state.Round <= 0 {
		return fmt.Errorf("%w: round_num %d", ErrValidation, state.Round)
	}
	if offer <= 0 || math.IsNaN(offer) || math.IsInf(offer, 0) {
		return fmt.Errorf("%w: carrier_offer %v", ErrValidation, offer)
	}
	if state.PrevCounter < 0 || state.AnchorHigh < 0 {
		return fmt.Errorf("%w: negative prior counter state", ErrValidation)
	}
	if math.IsNaN(load.BoardRate) || math.IsInf(load.BoardRate, 0) {
		return fmt.Errorf("%w: board_rate %v", ErrValidation, load.BoardRate)
	}
	if load.Miles < 0 {
		return fmt.Errorf("%w: miles %v", ErrValidation, load.Miles)
	}
	return nil
}
