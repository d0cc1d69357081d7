// Package analytics 把事件日志折算成看板数据：全部是纯函数，
// 查询由 journal 负责，这里只做归并与统计。
package analytics

import (
	"math"
	"sort"
	"time"

	"rate-desk-go/journal"
)

// Totals 各类通话结局计数。Calls 按会话数计。
type Totals struct {
	Calls       int `json:"calls"`
	Booked      int `json:"booked"`
	NoAgreement int `json:"no_agreement"`
	NoMatch     int `json:"no_match"`
	FailedAuth  int `json:"failed_auth"`
	Abandoned   int `json:"abandoned"`
}

// Rates 平均价位；没有样本时为 null。
type Rates struct {
	AvgBoard  *float64 `json:"avg_board"`
	AvgAgreed *float64 `json:"avg_agreed"`
	AvgDelta  *float64 `json:"avg_delta"`
}

// Sentiment 调用层标注的情绪分布（引擎不做情绪分类）。
type Sentiment struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// EquipmentStat 按车型聚合的成交统计。
type EquipmentStat struct {
	EquipmentType string   `json:"equipment_type"`
	Booked        int      `json:"booked"`
	AvgRate       *float64 `json:"avg_rate"`
}

// DayPoint 按天的通话/成交曲线点。
type DayPoint struct {
	Date   string `json:"date"`
	Calls  int    `json:"calls"`
	Booked int    `json:"booked"`
}

// Summary 看板总览。
type Summary struct {
	Totals      Totals          `json:"totals"`
	Rates       Rates           `json:"rates"`
	Sentiment   Sentiment       `json:"sentiment"`
	ByEquipment []EquipmentStat `json:"by_equipment"`
	Timeseries  []DayPoint      `json:"timeseries"`
}

var outcomeAlias = map[string]string{
	"booked":          "booked",
	"no-agreement":    "no_agreement",
	"no-match":        "no_match",
	"failed-auth":     "failed_auth",
	"abandoned":       "abandoned",
	"transfer_failed": "abandoned",
}

// Summarize 在给定时间窗的事件集合上算总览。
func Summarize(events []journal.Event, start, end time.Time) Summary {
	s := Summary{
		ByEquipment: []EquipmentStat{},
		Timeseries:  []DayPoint{},
	}
	if len(events) == 0 {
		return s
	}

	sessions := groupBySession(events)
	s.Totals.Calls = len(sessions)

	var agreed, board, deltas []float64
	type eqAgg struct {
		booked int
		sum    float64
		n      int
	}
	byEq := map[string]*eqAgg{}

	for _, e := range events {
		switch outcomeAlias[e.Event] {
		case "booked":
			s.Totals.Booked++
		case "no_agreement":
			s.Totals.NoAgreement++
		case "no_match":
			s.Totals.NoMatch++
		case "failed_auth":
			s.Totals.FailedAuth++
		case "abandoned":
			s.Totals.Abandoned++
		}
		switch e.Sentiment {
		case "positive":
			s.Sentiment.Positive++
		case "neutral":
			s.Sentiment.Neutral++
		case "negative":
			s.Sentiment.Negative++
		}
		if e.AgreedRate > 0 {
			agreed = append(agreed, e.AgreedRate)
		}
		if e.LoadboardRate > 0 {
			board = append(board, e.LoadboardRate)
		}
		if e.AgreedRate > 0 && e.LoadboardRate > 0 {
			deltas = append(deltas, e.AgreedRate-e.LoadboardRate)
		}
		if e.Event == "booked" && e.EquipmentType != "" {
			agg := byEq[e.EquipmentType]
			if agg == nil {
				agg = &eqAgg{}
				byEq[e.EquipmentType] = agg
			}
			agg.booked++
			if e.AgreedRate > 0 {
				agg.sum += e.AgreedRate
				agg.n++
			}
		}
	}
	s.Rates.AvgBoard = avg(board)
	s.Rates.AvgAgreed = avg(agreed)
	s.Rates.AvgDelta = avg(deltas)

	for eq, agg := range byEq {
		stat := EquipmentStat{EquipmentType: eq, Booked: agg.booked}
		if agg.n > 0 {
			v := math.Round(agg.sum / float64(agg.n))
			stat.AvgRate = &v
		}
		s.ByEquipment = append(s.ByEquipment, stat)
	}
	sort.Slice(s.ByEquipment, func(i, k int) bool {
		return s.ByEquipment[i].EquipmentType < s.ByEquipment[k].EquipmentType
	})

	// 曲线：通话按会话首事件计一天，成交按事件当天计。
	days := map[string]*DayPoint{}
	point := func(d time.Time) *DayPoint {
		key := d.Format("2006-01-02")
		p := days[key]
		if p == nil {
			p = &DayPoint{Date: key}
			days[key] = p
		}
		return p
	}
	inWindow := func(ts time.Time) bool {
		return !ts.Before(start) && !ts.After(end)
	}
	for _, evs := range sessions {
		if inWindow(evs[0].TS) {
			point(evs[0].TS).Calls++
		}
		for _, e := range evs {
			if e.Event == "booked" && inWindow(e.TS) {
				point(e.TS).Booked++
			}
		}
	}
	for _, p := range days {
		s.Timeseries = append(s.Timeseries, *p)
	}
	sort.Slice(s.Timeseries, func(i, k int) bool {
		return s.Timeseries[i].Date < s.Timeseries[k].Date
	})
	return s
}

// CallSummary 通话列表一行。
type CallSummary struct {
	ID             string   `json:"id"`
	StartedAt      string   `json:"started_at"`
	MCNumber       string   `json:"mc_number,omitempty"`
	SelectedLoadID string   `json:"selected_load_id,omitempty"`
	AgreedRate     *float64 `json:"agreed_rate,omitempty"`
	Rounds         int      `json:"negotiation_round,omitempty"`
	Outcome        string   `json:"outcome"`
	Sentiment      string   `json:"sentiment,omitempty"`
}

// Calls 按会话归并出通话列表，最新的在前。
func Calls(events []journal.Event) []CallSummary {
	sessions := groupBySession(events)
	out := make([]CallSummary, 0, len(sessions))
	for sid, evs := range sessions {
		first, last := evs[0], evs[len(evs)-1]
		row := CallSummary{
			ID:             sid,
			StartedAt:      first.TS.Format(time.RFC3339),
			MCNumber:       firstNonEmpty(first.MC, last.MC),
			SelectedLoadID: firstNonEmpty(first.LoadID, last.LoadID),
			Rounds:         last.Rounds,
			Outcome:        last.Event,
			Sentiment:      last.Sentiment,
		}
		if last.AgreedRate > 0 {
			v := last.AgreedRate
			row.AgreedRate = &v
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt > out[k].StartedAt })
	return out
}

// OfferPoint 通话详情里的出价轨迹点。
type OfferPoint struct {
	T     string  `json:"t"`
	Who   string  `json:"who"`
	Value float64 `json:"value"`
}

// TranscriptLine 通话详情里的一行文字。
type TranscriptLine struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CallDetail 单通话详情。
type CallDetail struct {
	ID             string                   `json:"id"`
	StartedAt      string                   `json:"started_at"`
	MCNumber       string                   `json:"mc_number,omitempty"`
	SelectedLoadID string                   `json:"selected_load_id,omitempty"`
	Offers         []OfferPoint             `json:"offers"`
	Outcome        string                   `json:"outcome"`
	Sentiment      string                   `json:"sentiment,omitempty"`
	Transcript     []TranscriptLine         `json:"transcript"`
	ToolCalls      []map[string]interface{} `json:"tool_calls"`
}

// BuildDetail 组装通话详情；events 必须非空且按时间升序。
func BuildDetail(sessionID string, events []journal.Event, offers []journal.Offer,
	calls []journal.ToolCall, lines []journal.Utterance) CallDetail {

	first, last := events[0], events[len(events)-1]
	started := first.TS
	if len(offers) > 0 && offers[0].T.Before(started) {
		started = offers[0].T
	}

	d := CallDetail{
		ID:             sessionID,
		StartedAt:      started.Format(time.RFC3339),
		MCNumber:       firstNonEmpty(first.MC, last.MC),
		SelectedLoadID: firstNonEmpty(first.LoadID, last.LoadID),
		Outcome:        last.Event,
		Sentiment:      last.Sentiment,
		Offers:         []OfferPoint{},
		Transcript:     []TranscriptLine{},
		ToolCalls:      []map[string]interface{}{},
	}
	for _, o := range offers {
		d.Offers = append(d.Offers, OfferPoint{T: o.T.Format(time.RFC3339), Who: o.Who, Value: o.Value})
	}
	for _, l := range lines {
		d.Transcript = append(d.Transcript, TranscriptLine{Role: l.Role, Text: l.Text})
	}
	for _, tc := range calls {
		row := map[string]interface{}{"fn": tc.Fn}
		if tc.OK != nil {
			row["ok"] = *tc.OK
		}
		for k, v := range tc.Info {
			row[k] = v
		}
		d.ToolCalls = append(d.ToolCalls, row)
	}
	return d
}

func groupBySession(events []journal.Event) map[string][]journal.Event {
	sessions := map[string][]journal.Event{}
	for _, e := range events {
		sid := e.SessionID
		if sid == "" {
			sid = "unknown"
		}
		sessions[sid] = append(sessions[sid], e)
	}
	for sid := range sessions {
		evs := sessions[sid]
		sort.Slice(evs, func(i, k int) bool { return evs[i].TS.Before(evs[k].TS) })
		sessions[sid] = evs
	}
	return sessions
}

// avg 保留一位小数；无样本返回 nil。
func avg(nums []float64) *float64 {
	if len(nums) == 0 {
		return nil
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	v := math.Round(sum/float64(len(nums))*10) / 10
	return &v
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
