package negotiation

// LoadContext 单次通话中被报盘的货源，由货源检索方提供，协商期间只读。
type LoadContext struct {
	LoadID        string
	BoardRate     float64 // 内部目标价（不对外披露）
	Miles         float64 // 0 表示未知
	EquipmentType string
}

// State 由调用方持有的回合状态；引擎只读入参、产出 NextState，自身不落盘。
type State struct {
	Round       int
	PrevCounter float64 // 上一轮我方还价；0 表示尚未还价
	AnchorHigh  float64 // 本会话我方开出过的最高还价；0 表示尚未还价
}

// NewState 返回第一回合的初始状态。
func NewState() State {
	return State{Round: 1}
}

// Kind 决策类别。
type Kind string

const (
	Accept       Kind = "accept"
	Counter      Kind = "counter"
	CounterFinal Kind = "counter-final"
	ConfirmLow   Kind = "confirm-low"
	Reject       Kind = "reject"
)

// Terminal 是否终止协商循环。confirm-low 与 counter 需要继续回合。
func (k Kind) Terminal() bool {
	return k == Accept || k == CounterFinal || k == Reject
}

// Decision 单轮评估结果。CounterRate 仅在 counter/counter-final 时有意义；
// Floor 每轮都带上，话务侧和审计用，不直接报给承运方。
type Decision struct {
	Kind        Kind
	CounterRate float64
	Floor       float64
	Next        State
}
