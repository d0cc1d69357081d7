package sim

import (
	"errors"
	"fmt"

	"rate-desk-go/negotiation"
)

// Recorder 回放过程的落盘面（可对接 journal）。
type Recorder interface {
	Record(event string, data map[string]interface{}) (string, error)
}

// Step 回放中的一轮交互。
type Step struct {
	Round    int
	Offer    float64
	Decision negotiation.Decision
}

// Result 一次会话回放的结果。
type Result struct {
	Steps      []Step
	Outcome    negotiation.Kind // 最后一次裁决类型
	AgreedRate float64          // accept 时为成交价，否则为 0
	FinalState negotiation.State
}

// Runner 将报价脚本->决策引擎->事件落盘串起来（离线回放，不含真实通话层）。
type Runner struct {
	SessionID string
	Neg       *negotiation.Negotiator
	Journal   Recorder // 可选
}

// Run 依次喂入承运方报价，直到脚本耗尽或谈判终局。
// confirm-low 不移动价格：下一个脚本报价按复核后的数处理。
func (r *Runner) Run(load negotiation.LoadContext, offers []float64) (Result, error) {
	if r.Neg == nil {
		return Result{}, errors.New("runner not initialized")
	}
	if len(offers) == 0 {
		return Result{}, errors.New("empty offer script")
	}

	res := Result{FinalState: negotiation.NewState()}
	for _, offer := range offers {
		d, err := r.Neg.Evaluate(load, res.FinalState, offer)
		if err != nil {
			return res, fmt.Errorf("round %d: %w", res.FinalState.Round, err)
		}
		res.Steps = append(res.Steps, Step{Round: res.FinalState.Round, Offer: offer, Decision: d})
		res.Outcome = d.Kind

		if r.Journal != nil {
			r.record("offer", map[string]interface{}{"who": "carrier", "value": offer})
			if d.CounterRate > 0 {
				r.record("offer", map[string]interface{}{"who": "agent", "value": d.CounterRate})
			}
		}

		res.FinalState = d.Next
		if d.Kind == negotiation.Accept {
			res.AgreedRate = offer
		}
		if d.Kind.Terminal() {
			break
		}
	}

	if r.Journal != nil {
		r.record(finalLabel(res), map[string]interface{}{
			"load_id":        load.LoadID,
			"loadboard_rate": load.BoardRate,
			"equipment_type": load.EquipmentType,
			"rounds":         len(res.Steps),
			"agreed_rate":    res.AgreedRate,
		})
	}
	return res, nil
}

func (r *Runner) record(event string, data map[string]interface{}) {
	if r.SessionID != "" {
		data["session_id"] = r.SessionID
	}
	// 落盘失败不影响回放结果。
	_, _ = r.Journal.Record(event, data)
}

func finalLabel(res Result) string {
	switch res.Outcome {
	case negotiation.Accept:
		return "booked"
	case negotiation.Reject:
		return "no-agreement"
	default:
		// 脚本耗尽而未终局。
		return "abandoned"
	}
}
