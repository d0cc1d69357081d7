package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventsBetween 按时间窗取事件，升序。
func (j *Journal) EventsBetween(start, end time.Time) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT id, ts, event, session_id, mc, load_id, sentiment, rounds, agreed_rate, loadboard_rate, equipment_type, extra
		 FROM events WHERE ts >= ? AND ts <= ? ORDER BY ts ASC`,
		start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsBySession 某会话的全部事件，升序。
func (j *Journal) EventsBySession(sessionID string) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT id, ts, event, session_id, mc, load_id, sentiment, rounds, agreed_rate, loadboard_rate, equipment_type, extra
		 FROM events WHERE session_id = ? ORDER BY ts ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var ev Event
		var ts, extra string
		var sid, mc, loadID, sentiment, equip sql.NullString
		var rounds sql.NullInt64
		var agreed, board sql.NullFloat64
		if err := rows.Scan(&ev.ID, &ts, &ev.Event, &sid, &mc, &loadID, &sentiment, &rounds, &agreed, &board, &equip, &extra); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.TS, _ = time.Parse(time.RFC3339Nano, ts)
		ev.SessionID = sid.String
		ev.MC = mc.String
		ev.LoadID = loadID.String
		ev.Sentiment = sentiment.String
		ev.EquipmentType = equip.String
		ev.Rounds = int(rounds.Int64)
		ev.AgreedRate = agreed.Float64
		ev.LoadboardRate = board.Float64
		if extra != "" {
			_ = json.Unmarshal([]byte(extra), &ev.Extra)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// OffersBySession 某会话的出价轨迹，按时间升序。
func (j *Journal) OffersBySession(sessionID string) ([]Offer, error) {
	rows, err := j.db.Query(
		`SELECT session_id, who, value, t FROM offers WHERE session_id = ? ORDER BY t ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()
	var out []Offer
	for rows.Next() {
		var o Offer
		var ts string
		if err := rows.Scan(&o.SessionID, &o.Who, &o.Value, &ts); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		o.T, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ToolCallsBySession 某会话的工具调用，按写入顺序。
func (j *Journal) ToolCallsBySession(sessionID string) ([]ToolCall, error) {
	rows, err := j.db.Query(
		`SELECT session_id, fn, ok, info FROM tool_calls WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()
	var out []ToolCall
	for rows.Next() {
		var tc ToolCall
		var ok sql.NullInt64
		var info string
		if err := rows.Scan(&tc.SessionID, &tc.Fn, &ok, &info); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if ok.Valid {
			b := ok.Int64 != 0
			tc.OK = &b
		}
		if info != "" {
			_ = json.Unmarshal([]byte(info), &tc.Info)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// UtterancesBySession 某会话的文字记录，按写入顺序。
func (j *Journal) UtterancesBySession(sessionID string) ([]Utterance, error) {
	rows, err := j.db.Query(
		`SELECT session_id, role, text FROM utterances WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	defer rows.Close()
	var out []Utterance
	for rows.Next() {
		var u Utterance
		if err := rows.Scan(&u.SessionID, &u.Role, &u.Text); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SessionIDs 从任意足迹（事件/出价/工具/文字）发现会话。
func (j *Journal) SessionIDs() ([]string, error) {
	rows, err := j.db.Query(
		`SELECT DISTINCT session_id FROM (
			SELECT session_id FROM events WHERE session_id <> ''
			UNION SELECT session_id FROM offers
			UNION SELECT session_id FROM tool_calls
			UNION SELECT session_id FROM utterances
		)`)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		if sid != "" {
			out = append(out, sid)
		}
	}
	return out, rows.Err()
}

// HasFinalEvent 会话是否已有终局事件。
func (j *Journal) HasFinalEvent(sessionID string) (bool, error) {
	labels := make([]interface{}, 0, len(finalLabels))
	marks := ""
	seen := map[string]bool{}
	for _, label := range finalLabels {
		if seen[label] {
			continue
		}
		seen[label] = true
		if marks != "" {
			marks += ","
		}
		marks += "?"
		labels = append(labels, label)
	}
	args := append([]interface{}{sessionID}, labels...)
	var n int
	err := j.db.QueryRow(
		`SELECT COUNT(1) FROM events WHERE session_id = ? AND event IN (`+marks+`)`, args...).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query final event: %w", err)
	}
	return n > 0, nil
}

// LastActivity 会话最后活跃时间：取出价与事件时间的较大者。
func (j *Journal) LastActivity(sessionID string) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, q := range []string{
		`SELECT t FROM offers WHERE session_id = ? ORDER BY t DESC LIMIT 1`,
		`SELECT ts FROM events WHERE session_id = ? ORDER BY ts DESC LIMIT 1`,
	} {
		var raw string
		err := j.db.QueryRow(q, sessionID).Scan(&raw)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return time.Time{}, false, fmt.Errorf("query last activity: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			if !found || t.After(last) {
				last = t
				found = true
			}
		}
	}
	return last, found, nil
}

// TableCount 某表行数（用量报表用）。
type TableCount struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// Usage 数据库用量：文件字节数（page_count*page_size）与各表行数。
type Usage struct {
	Driver      string       `json:"driver"`
	UsedBytes   int64        `json:"used_bytes"`
	Tables      []TableCount `json:"tables"`
	LastEventTS string       `json:"last_event_ts,omitempty"`
}

// ReportUsage 汇总存储占用，供 /analytics/db_usage。
func (j *Journal) ReportUsage() (Usage, error) {
	u := Usage{Driver: "sqlite"}
	var pageCount, pageSize int64
	if err := j.db.QueryRow(`PRAGMA page_count`).Scan(&pageCount); err != nil {
		return u, fmt.Errorf("pragma page_count: %w", err)
	}
	if err := j.db.QueryRow(`PRAGMA page_size`).Scan(&pageSize); err != nil {
		return u, fmt.Errorf("pragma page_size: %w", err)
	}
	u.UsedBytes = pageCount * pageSize

	for _, name := range []string{"events", "offers", "tool_calls", "utterances"} {
		var n int64
		if err := j.db.QueryRow(`SELECT COUNT(1) FROM ` + name).Scan(&n); err != nil {
			return u, fmt.Errorf("count %s: %w", name, err)
		}
		u.Tables = append(u.Tables, TableCount{Name: name, Rows: n})
	}

	var last sql.NullString
	if err := j.db.QueryRow(`SELECT MAX(ts) FROM events`).Scan(&last); err == nil && last.Valid {
		u.LastEventTS = last.String
	}
	return u, nil
}
