package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rate-desk-go/analytics"
	"rate-desk-go/journal"
	"rate-desk-go/loads"
	"rate-desk-go/negotiation"
)

type verifyRequest struct {
	MCNumber string `json:"mc_number"`
}

func (s *Server) handleVerifyMC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "verification unavailable")
		return
	}
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.MCNumber) == "" {
		writeError(w, http.StatusBadRequest, "mc_number is required")
		return
	}

	res, err := s.verifier.Verify(r.Context(), req.MCNumber)
	if err != nil {
		if s.mon != nil {
			s.mon.RecordFMCSAError()
		}
		if s.alerts != nil {
			_ = s.alerts.Error("fmcsa upstream error", map[string]interface{}{
				"mc_number": req.MCNumber,
				"error":     err.Error(),
			})
		}
		writeError(w, http.StatusBadGateway, "verification upstream error")
		return
	}
	if s.mon != nil {
		outcome := "ineligible"
		if res.Eligible {
			outcome = "eligible"
		}
		s.mon.RecordVerification(outcome)
	}
	if s.log != nil {
		s.log.LogVerify(res.MCNumber, res.Eligible, map[string]interface{}{
			"authority_status": res.AuthorityStatus,
			"source":           res.Source,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	EquipmentType string `json:"equipment_type"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	Limit         int    `json:"limit"`
}

func (s *Server) handleSearchLoads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "load board unavailable")
		return
	}
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	found := s.catalog.Search(loads.Query{
		EquipmentType: req.EquipmentType,
		Origin:        req.Origin,
		Destination:   req.Destination,
		Limit:         req.Limit,
	})
	if s.mon != nil {
		s.mon.RecordLoadSearch(len(found))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loads": found,
		"count": len(found),
	})
}

type evaluateRequest struct {
	SessionID     string  `json:"session_id"`
	LoadID        string  `json:"load_id"`
	LoadboardRate float64 `json:"loadboard_rate"`
	Miles         float64 `json:"miles"`
	EquipmentType string  `json:"equipment_type"`
	CarrierOffer  float64 `json:"carrier_offer"`
	RoundNum      int     `json:"round_num"`
	PrevCounter   float64 `json:"prev_counter"`
	AnchorHigh    float64 `json:"anchor_high"`
}

type stateJSON struct {
	RoundNum    int     `json:"round_num"`
	PrevCounter float64 `json:"prev_counter,omitempty"`
	AnchorHigh  float64 `json:"anchor_high,omitempty"`
}

type evaluateResponse struct {
	Decision    string    `json:"decision"`
	CounterRate float64   `json:"counter_rate,omitempty"`
	Floor       float64   `json:"floor"`
	Next        stateJSON `json:"next"`
}

func (s *Server) handleEvaluateOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	neg := s.negotiator()
	if neg == nil {
		writeError(w, http.StatusServiceUnavailable, "negotiation unavailable")
		return
	}
	var req evaluateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	load := negotiation.LoadContext{
		LoadID:        req.LoadID,
		BoardRate:     req.LoadboardRate,
		Miles:         req.Miles,
		EquipmentType: req.EquipmentType,
	}
	// 给了 load_id 且目录里有，以目录为准。
	if req.LoadID != "" && s.catalog != nil {
		if known, ok := s.catalog.Get(req.LoadID); ok {
			load = known.Context()
		}
	}

	state := negotiation.State{
		Round:       req.RoundNum,
		PrevCounter: req.PrevCounter,
		AnchorHigh:  req.AnchorHigh,
	}
	if state.Round == 0 {
		state = negotiation.NewState()
	}

	d, err := neg.Evaluate(load, state, req.CarrierOffer)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, negotiation.ErrValidation) {
			status = http.StatusBadRequest
		}
		if s.mon != nil {
			s.mon.RecordHTTPError(routeLabel(r.URL.Path))
		}
		writeError(w, status, err.Error())
		return
	}

	if s.mon != nil {
		s.mon.RecordDecision(string(d.Kind))
		if d.CounterRate > 0 {
			s.mon.UpdateCounterRate(d.CounterRate)
		}
		if d.Kind == negotiation.Accept {
			s.mon.UpdateAgreedRate(req.CarrierOffer)
		}
		if d.Kind.Terminal() {
			s.mon.RecordRoundsPlayed(state.Round)
		}
	}
	if s.log != nil {
		s.log.LogDecision(req.SessionID, string(d.Kind), map[string]interface{}{
			"load_id":       load.LoadID,
			"carrier_offer": req.CarrierOffer,
			"counter_rate":  d.CounterRate,
			"round":         state.Round,
		})
	}
	if s.journal != nil && req.SessionID != "" && d.CounterRate > 0 {
		// 我方还价进出价轨迹，供通话详情回放。
		_ = s.journal.RecordDecisionAudit(req.SessionID, d.CounterRate)
	}
	s.hub.Publish(StreamEvent{
		Type:      "decision",
		SessionID: req.SessionID,
		Data: map[string]interface{}{
			"decision":      string(d.Kind),
			"counter_rate":  d.CounterRate,
			"carrier_offer": req.CarrierOffer,
			"round":         state.Round,
		},
	})
	if s.mon != nil {
		s.mon.RecordWSEvent()
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Decision:    string(d.Kind),
		CounterRate: d.CounterRate,
		Floor:       d.Floor,
		Next: stateJSON{
			RoundNum:    d.Next.Round,
			PrevCounter: d.Next.PrevCounter,
			AnchorHigh:  d.Next.AnchorHigh,
		},
	})
}

func (s *Server) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	var body map[string]interface{}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	event, _ := body["event"].(string)
	if event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	delete(body, "event")

	// 字段缺失只提示不拦截，上报链路不能因为脏数据丢事件。
	if err := journal.ValidateEventFields(event, body); err != nil && s.log != nil {
		s.log.LogSession("", "event-schema-violation", map[string]interface{}{
			"event_name": event,
			"detail":     err.Error(),
		})
	}

	sid, err := s.journal.Record(event, body)
	if err != nil {
		if s.alerts != nil {
			_ = s.alerts.Error("journal write failed", map[string]interface{}{"event": event, "error": err.Error()})
		}
		writeError(w, http.StatusInternalServerError, "record failed")
		return
	}
	if s.mon != nil {
		s.mon.RecordEvent(event)
		s.mon.RecordWSEvent()
	}
	if s.log != nil {
		s.log.LogSession(sid, event, nil)
	}
	s.hub.Publish(StreamEvent{Type: "event", SessionID: sid, Data: map[string]interface{}{"event": event}})

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "session_id": sid})
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	start, end := parseWindow(r)
	events, err := s.journal.EventsBetween(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, analytics.Summarize(events, start, end))
}

func (s *Server) handleDBUsage(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	u, err := s.journal.ReportUsage()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "usage query failed")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	start, end := parseWindow(r)
	events, err := s.journal.EventsBetween(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"calls": analytics.Calls(events)})
}

func (s *Server) handleCallDetail(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/calls/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	events, err := s.journal.EventsBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	offers, _ := s.journal.OffersBySession(id)
	calls, _ := s.journal.ToolCallsBySession(id)
	lines, _ := s.journal.UtterancesBySession(id)
	writeJSON(w, http.StatusOK, analytics.BuildDetail(id, events, offers, calls, lines))
}

// parseWindow 解析 start/end 查询参数（RFC3339），缺省取近 30 天。
func parseWindow(r *http.Request) (time.Time, time.Time) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			end = t
		}
	}
	if end.Before(start) {
		start, end = end, start
	}
	return start, end
}
