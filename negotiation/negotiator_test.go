package negotiation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNegotiator(t *testing.T) *Negotiator {
	t.Helper()
	n, err := New(DefaultPolicy())
	require.NoError(t, err)
	return n
}

var testLoad = LoadContext{LoadID: "L-1001", BoardRate: 1400, EquipmentType: "Dry Van"}

// 规格示例：报价已越过保证金线 → 直接接受。
func TestEvaluate_AcceptAboveFloor(t *testing.T) {
	n := newNegotiator(t)
	d, err := n.Evaluate(testLoad, NewState(), 1500)
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Kind)
	assert.Equal(t, 1260.0, d.Floor)
	assert.True(t, d.Kind.Terminal())
}

// 规格示例：首轮离谱低价（疑似转写错误）→ confirm-low，无价格移动。
func TestEvaluate_ConfirmLowFirstRound(t *testing.T) {
	n := newNegotiator(t)
	d, err := n.Evaluate(testLoad, NewState(), 500)
	require.NoError(t, err)
	assert.Equal(t, ConfirmLow, d.Kind)
	assert.Zero(t, d.CounterRate)
	assert.Equal(t, 2, d.Next.Round)
	assert.False(t, d.Kind.Terminal())
}

// 规格示例：低于 floor 但并非离谱 → 还价落在 floor 与报价之间并按 tick 取整。
func TestEvaluate_CounterBetweenFloorAndOffer(t *testing.T) {
	n := newNegotiator(t)
	d, err := n.Evaluate(testLoad, NewState(), 1100)
	require.NoError(t, err)
	assert.Equal(t, Counter, d.Kind)
	assert.Equal(t, 1180.0, d.CounterRate)
	assert.Greater(t, d.CounterRate, 1100.0)
	assert.LessOrEqual(t, d.CounterRate, 1260.0)
	assert.Equal(t, State{Round: 2, PrevCounter: 1180, AnchorHigh: 1180}, d.Next)
}

// 完整会话：对方始终不松口，第 3 轮必须给出终局决策，绝不再开新 counter。
func TestEvaluate_SessionTerminatesByMaxRounds(t *testing.T) {
	n := newNegotiator(t)
	st := NewState()
	var last Decision
	for i := 0; i < 3; i++ {
		d, err := n.Evaluate(testLoad, st, 1100)
		require.NoError(t, err)
		last = d
		st = d.Next
	}
	assert.Equal(t, CounterFinal, last.Kind)
	assert.True(t, last.Kind.Terminal())
	// 1180 → 1140 → 1120 的单调收口。
	assert.Equal(t, 1120.0, last.CounterRate)
	assert.Equal(t, 1180.0, last.Next.AnchorHigh)
}

// 关闭末轮一口价时，末轮未成交直接 reject。
func TestEvaluate_FinalRoundRejectWhenDisabled(t *testing.T) {
	p := DefaultPolicy()
	p.FinalRoundCounter = false
	n, err := New(p)
	require.NoError(t, err)
	st := State{Round: 3, PrevCounter: 1140, AnchorHigh: 1180}
	d, err := n.Evaluate(testLoad, st, 1100)
	require.NoError(t, err)
	assert.Equal(t, Reject, d.Kind)
}

// 超出回合上限：复述一口价（终局），不再让步。
func TestEvaluate_BeyondLimitRestatesFinal(t *testing.T) {
	n := newNegotiator(t)
	st := State{Round: 4, PrevCounter: 1120, AnchorHigh: 1180}
	d, err := n.Evaluate(testLoad, st, 1100)
	require.NoError(t, err)
	assert.Equal(t, CounterFinal, d.Kind)
	assert.Equal(t, 1120.0, d.CounterRate)
}

// 锚定不回退：无论对方报价怎么跳，后续还价永不超过历史最高还价。
func TestEvaluate_AnchorMonotonicity(t *testing.T) {
	n := newNegotiator(t)
	st := NewState()
	offers := []float64{1100, 1050, 1210, 1120}
	anchor := 0.0
	for _, offer := range offers {
		d, err := n.Evaluate(testLoad, st, offer)
		require.NoError(t, err)
		if d.Kind == Counter || d.Kind == CounterFinal {
			if anchor > 0 {
				assert.LessOrEqual(t, d.CounterRate, anchor, "offer %v regressed past anchor", offer)
			}
			anchor = d.Next.AnchorHigh
		}
		if d.Kind.Terminal() {
			break
		}
		st = d.Next
	}
}

// 锚定被污染（低于止谈线）的状态下触发底线 guard → reject，而不是报出坏价。
func TestEvaluate_FloorGuardOnCorruptAnchor(t *testing.T) {
	n := newNegotiator(t)
	st := State{Round: 2, PrevCounter: 620, AnchorHigh: 620}
	d, err := n.Evaluate(testLoad, st, 800)
	require.NoError(t, err)
	assert.Equal(t, Reject, d.Kind)
}

// 纯函数：相同输入重复评估，结果逐字段一致。
func TestEvaluate_Idempotent(t *testing.T) {
	n := newNegotiator(t)
	st := State{Round: 2, PrevCounter: 1180, AnchorHigh: 1180}
	d1, err := n.Evaluate(testLoad, st, 1050)
	require.NoError(t, err)
	d2, err := n.Evaluate(testLoad, st, 1050)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

// 任意合法输入下的通用性质：floor 不超过 board，counter 落在对方报价与 floor 之间。
func TestEvaluate_Properties(t *testing.T) {
	n := newNegotiator(t)
	for board := 600.0; board <= 3000; board += 485 {
		load := LoadContext{LoadID: "L", BoardRate: board, Miles: board / 2}
		for offer := 100.0; offer <= board*1.3; offer += 203 {
			st := NewState()
			for r := 0; r < 5; r++ {
				d, err := n.Evaluate(load, st, offer)
				require.NoError(t, err)
				assert.LessOrEqual(t, d.Floor, board)
				if d.Kind == Counter || d.Kind == CounterFinal {
					assert.Greater(t, d.CounterRate, 0.0)
					assert.LessOrEqual(t, d.CounterRate, d.Floor)
				}
				if st.Round >= n.Policy().MaxRounds {
					assert.NotEqual(t, Counter, d.Kind, "round %d must be terminal-or-final", st.Round)
				}
				if d.Kind.Terminal() {
					break
				}
				st = d.Next
			}
		}
	}
}

func TestEvaluate_ValidationErrors(t *testing.T) {
	n := newNegotiator(t)
	cases := []struct {
		name  string
		load  LoadContext
		state State
		offer float64
	}{
		{"zero round", testLoad, State{Round: 0}, 1000},
		{"negative round", testLoad, State{Round: -2}, 1000},
		{"zero offer", testLoad, NewState(), 0},
		{"negative offer", testLoad, NewState(), -50},
		{"negative prev counter", testLoad, State{Round: 2, PrevCounter: -1}, 1000},
		{"negative miles", LoadContext{LoadID: "L", BoardRate: 1400, Miles: -10}, NewState(), 1000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := n.Evaluate(c.load, c.state, c.offer)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	// board <= 0 是配置缺陷而非业务分支。
	_, err := n.Evaluate(LoadContext{LoadID: "L", BoardRate: 0}, NewState(), 1000)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_RejectsBadPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.Tick = 0
	_, err := New(p)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
