package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rate-desk-go/config"
	"rate-desk-go/eligibility"
	"rate-desk-go/journal"
	"rate-desk-go/loads"
	"rate-desk-go/negotiation"
)

const sampleCSV = `load_id,origin,destination,pickup_datetime,delivery_datetime,equipment_type,loadboard_rate,notes,weight,commodity_type,num_of_pieces,miles,dimensions
L-1001,Chicago IL,Dallas TX,2026-09-01T08:00:00,2026-09-02T17:00:00,Dry Van,1400,,42000,Paper,20,500,
L-1002,Atlanta GA,Miami FL,2026-09-01T09:00:00,2026-09-02T12:00:00,Reefer,2100,,38000,Produce,15,660,
`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	catalog := loads.NewCatalog()
	require.NoError(t, catalog.FromCSV(strings.NewReader(sampleCSV)))

	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "events.db"), filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	neg, err := negotiation.New(negotiation.DefaultPolicy())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.APIKey = "secret"
	cfg.FMCSA.Mock = true

	s := New(Options{
		Config:   cfg,
		Neg:      neg,
		Verifier: &eligibility.Client{Mock: true},
		Catalog:  catalog,
		Journal:  j,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("x-api-key", "secret")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("x-api-key", "secret")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthNoAuth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerifyMC(t *testing.T) {
	_, ts := newTestServer(t)
	resp := post(t, ts, "/verify_mc", map[string]interface{}{"mc_number": "MC-123456"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res eligibility.Result
	decode(t, resp, &res)
	assert.True(t, res.Eligible)
	assert.Equal(t, "mock", res.Source)

	resp = post(t, ts, "/verify_mc", map[string]interface{}{"mc_number": "  "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := ts.Client().Post(ts.URL+"/search_loads", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSearchLoads(t *testing.T) {
	_, ts := newTestServer(t)
	resp := post(t, ts, "/search_loads", map[string]interface{}{"equipment_type": "Dry Van"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Loads []loads.Load `json:"loads"`
		Count int          `json:"count"`
	}
	decode(t, resp, &out)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "L-1001", out.Loads[0].LoadID)
}

func TestEvaluateOffer_FirstRoundCounter(t *testing.T) {
	_, ts := newTestServer(t)
	resp := post(t, ts, "/evaluate_offer", map[string]interface{}{
		"session_id":    "s-1",
		"load_id":       "L-1001",
		"carrier_offer": 1100.0,
		"round_num":     1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out evaluateResponse
	decode(t, resp, &out)
	assert.Equal(t, "counter", out.Decision)
	assert.Equal(t, 1180.0, out.CounterRate)
	assert.Equal(t, 1260.0, out.Floor) // board 1400 的九折底价
	assert.Equal(t, 2, out.Next.RoundNum)
	assert.Equal(t, 1180.0, out.Next.PrevCounter)
	assert.Equal(t, 1180.0, out.Next.AnchorHigh)
}

// 每个分支的应答都必须带 floor，话术侧靠它解释底线。
func TestEvaluateOffer_FloorOnWire(t *testing.T) {
	_, ts := newTestServer(t)
	for _, offer := range []float64{400.0, 1100.0, 1500.0} {
		resp := post(t, ts, "/evaluate_offer", map[string]interface{}{
			"load_id":       "L-1001",
			"carrier_offer": offer,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var raw map[string]interface{}
		decode(t, resp, &raw)
		floor, ok := raw["floor"]
		require.True(t, ok, "offer %.0f: response missing floor", offer)
		assert.Equal(t, 1260.0, floor)
	}
}

// load_id 命中目录时，请求携带的 board/miles 被目录覆盖。
func TestEvaluateOffer_CatalogOverridesBody(t *testing.T) {
	_, ts := newTestServer(t)
	resp := post(t, ts, "/evaluate_offer", map[string]interface{}{
		"load_id":        "L-1001",
		"loadboard_rate": 99999.0,
		"carrier_offer":  1500.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out evaluateResponse
	decode(t, resp, &out)
	// 目录 board 1400：1500 直接 accept。
	assert.Equal(t, "accept", out.Decision)
}

func TestEvaluateOffer_Validation(t *testing.T) {
	_, ts := newTestServer(t)
	resp := post(t, ts, "/evaluate_offer", map[string]interface{}{
		"loadboard_rate": 1400.0,
		"carrier_offer":  -5.0,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogEventAndCalls(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts, "/log_event", map[string]interface{}{
		"event":          "booked",
		"session_id":     "s-9",
		"mc":             "123456",
		"load_id":        "L-1001",
		"agreed_rate":    1180.0,
		"loadboard_rate": 1400.0,
		"quoted_rate":    1100.0,
		"sentiment":      "positive",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logged struct {
		OK        bool   `json:"ok"`
		SessionID string `json:"session_id"`
	}
	decode(t, resp, &logged)
	assert.True(t, logged.OK)
	assert.Equal(t, "s-9", logged.SessionID)

	resp = get(t, ts, "/calls")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var calls struct {
		Calls []map[string]interface{} `json:"calls"`
	}
	decode(t, resp, &calls)
	require.Len(t, calls.Calls, 1)
	assert.Equal(t, "s-9", calls.Calls[0]["id"])
	assert.Equal(t, "booked", calls.Calls[0]["outcome"])

	resp = get(t, ts, "/calls/s-9")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail map[string]interface{}
	decode(t, resp, &detail)
	assert.Equal(t, "s-9", detail["id"])
	offers, _ := detail["offers"].([]interface{})
	assert.Len(t, offers, 2) // carrier 1100 + agent 1180

	resp = get(t, ts, "/calls/missing")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyticsSummary(t *testing.T) {
	_, ts := newTestServer(t)
	post(t, ts, "/log_event", map[string]interface{}{
		"event": "booked", "session_id": "a", "agreed_rate": 1000.0, "loadboard_rate": 1200.0,
	}).Body.Close()
	post(t, ts, "/log_event", map[string]interface{}{
		"event": "no-agreement", "session_id": "b",
	}).Body.Close()

	resp := get(t, ts, "/analytics/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum struct {
		Totals struct {
			Calls  int `json:"calls"`
			Booked int `json:"booked"`
		} `json:"totals"`
	}
	decode(t, resp, &sum)
	assert.Equal(t, 2, sum.Totals.Calls)
	assert.Equal(t, 1, sum.Totals.Booked)
}

func TestDBUsage(t *testing.T) {
	_, ts := newTestServer(t)
	post(t, ts, "/log_event", map[string]interface{}{"event": "booked", "session_id": "u"}).Body.Close()

	resp := get(t, ts, "/analytics/db_usage")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u struct {
		Driver    string `json:"driver"`
		UsedBytes int64  `json:"used_bytes"`
	}
	decode(t, resp, &u)
	assert.Equal(t, "sqlite", u.Driver)
	assert.Greater(t, u.UsedBytes, int64(0))
}

func TestWSReceivesEvents(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	header := http.Header{"x-api-key": []string{"secret"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// 等订阅注册完成再发布。
	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)
	s.Hub().Publish(StreamEvent{Type: "event", SessionID: "s-ws", Data: map[string]interface{}{"event": "booked"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "event", ev.Type)
	assert.Equal(t, "s-ws", ev.SessionID)
}
