package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "events.db"), filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecord_FinalEvent(t *testing.T) {
	j := openTest(t)
	sid, err := j.Record("booked", map[string]interface{}{
		"session_id":     "s-1",
		"mc":             "123456",
		"load_id":        "L-1001",
		"sentiment":      "positive",
		"rounds":         2.0,
		"agreed_rate":    1180.0,
		"loadboard_rate": 1400.0,
		"equipment_type": "Dry Van",
		"quoted_rate":    1100.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", sid)

	evs, err := j.EventsBySession("s-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "booked", evs[0].Event)
	assert.Equal(t, 1180.0, evs[0].AgreedRate)
	assert.Equal(t, 2, evs[0].Rounds)
	assert.Equal(t, "Dry Van", evs[0].EquipmentType)

	// quoted_rate 记为承运方出价，agreed_rate 记为我方成交价。
	offers, err := j.OffersBySession("s-1")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "carrier", offers[0].Who)
	assert.Equal(t, 1100.0, offers[0].Value)
	assert.Equal(t, "agent", offers[1].Who)
	assert.Equal(t, 1180.0, offers[1].Value)
}

// transfer_failed 并入 abandoned。
func TestRecord_TransferFailedAlias(t *testing.T) {
	j := openTest(t)
	_, err := j.Record("transfer_failed", map[string]interface{}{"session_id": "s-2"})
	require.NoError(t, err)
	evs, err := j.EventsBySession("s-2")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "abandoned", evs[0].Event)
}

func TestRecord_AssignsSessionID(t *testing.T) {
	j := openTest(t)
	sid, err := j.Record("offer", map[string]interface{}{"value": 950.0})
	require.NoError(t, err)
	assert.NotEmpty(t, sid)

	offers, err := j.OffersBySession(sid)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "carrier", offers[0].Who) // who 缺省按承运方
}

func TestRecord_ToolCall(t *testing.T) {
	j := openTest(t)
	_, err := j.Record("tool-call", map[string]interface{}{
		"session_id": "s-3",
		"fn":         "evaluate_offer",
		"ok":         true,
		"round":      1.0,
	})
	require.NoError(t, err)

	calls, err := j.ToolCallsBySession("s-3")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "evaluate_offer", calls[0].Fn)
	require.NotNil(t, calls[0].OK)
	assert.True(t, *calls[0].OK)
	assert.Equal(t, 1.0, calls[0].Info["round"])
}

func TestRecord_FinalArtifacts(t *testing.T) {
	j := openTest(t)
	_, err := j.Record("final-artifacts", map[string]interface{}{
		"session_id": "s-4",
		"offers": []interface{}{
			map[string]interface{}{"who": "carrier", "value": 1100.0, "t": "2026-08-30T10:00:00Z"},
			map[string]interface{}{"who": "agent", "value": 1180.0},
			map[string]interface{}{"who": "agent"}, // 无 value，跳过
		},
		"tool_calls": []interface{}{
			map[string]interface{}{"fn": "search_loads", "ok": true},
		},
		"transcript": []interface{}{
			map[string]interface{}{"role": "assistant", "text": "I can do eleven-eighty."},
			map[string]interface{}{"role": "user", "text": "   "}, // 空白行跳过
		},
	})
	require.NoError(t, err)

	offers, err := j.OffersBySession("s-4")
	require.NoError(t, err)
	assert.Len(t, offers, 2)

	calls, err := j.ToolCallsBySession("s-4")
	require.NoError(t, err)
	assert.Len(t, calls, 1)

	lines, err := j.UtterancesBySession("s-4")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "assistant", lines[0].Role)
}

func TestAuditFile(t *testing.T) {
	dir := t.TempDir()
	audit := filepath.Join(dir, "events.jsonl")
	j, err := Open(filepath.Join(dir, "events.db"), audit)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Record("booked", map[string]interface{}{"session_id": "s-5"})
	require.NoError(t, err)
	_, err = j.Record("offer", map[string]interface{}{"session_id": "s-5", "value": 900.0})
	require.NoError(t, err)

	f, err := os.Open(audit)
	require.NoError(t, err)
	defer f.Close()
	var count int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.NotEmpty(t, rec["event"])
		count++
	}
	assert.Equal(t, 2, count) // 每次上报都进审计文件
}

func TestEventsBetween(t *testing.T) {
	j := openTest(t)
	old := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.InsertEvent(Event{TS: old, Event: "booked", SessionID: "s-old"}))
	_, err := j.Record("no-agreement", map[string]interface{}{"session_id": "s-new"})
	require.NoError(t, err)

	evs, err := j.EventsBetween(old.Add(-time.Hour), old.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "s-old", evs[0].SessionID)
}

func TestHasFinalEventAndLastActivity(t *testing.T) {
	j := openTest(t)
	_, err := j.Record("offer", map[string]interface{}{"session_id": "s-6", "value": 1000.0})
	require.NoError(t, err)

	final, err := j.HasFinalEvent("s-6")
	require.NoError(t, err)
	assert.False(t, final)

	last, found, err := j.LastActivity("s-6")
	require.NoError(t, err)
	assert.True(t, found)
	assert.WithinDuration(t, time.Now().UTC(), last, time.Minute)

	_, err = j.Record("booked", map[string]interface{}{"session_id": "s-6"})
	require.NoError(t, err)
	final, err = j.HasFinalEvent("s-6")
	require.NoError(t, err)
	assert.True(t, final)
}

func TestSessionIDs(t *testing.T) {
	j := openTest(t)
	_, err := j.Record("offer", map[string]interface{}{"session_id": "a", "value": 1.0})
	require.NoError(t, err)
	_, err = j.Record("tool-call", map[string]interface{}{"session_id": "b", "fn": "verify_mc"})
	require.NoError(t, err)
	_, err = j.Record("booked", map[string]interface{}{"session_id": "c"})
	require.NoError(t, err)

	ids, err := j.SessionIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestReportUsage(t *testing.T) {
	j := openTest(t)
	_, err := j.Record("booked", map[string]interface{}{"session_id": "s-7"})
	require.NoError(t, err)

	u, err := j.ReportUsage()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", u.Driver)
	assert.Greater(t, u.UsedBytes, int64(0))
	require.Len(t, u.Tables, 4)
	assert.Equal(t, "events", u.Tables[0].Name)
	assert.Equal(t, int64(1), u.Tables[0].Rows)
	assert.NotEmpty(t, u.LastEventTS)
}
