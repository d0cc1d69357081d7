package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// 终局事件标签；有其一的会话视为已收尾。
var finalLabels = map[string]string{
	"booked":          "booked",
	"no-agreement":    "no-agreement",
	"no-match":        "no-match",
	"failed-auth":     "failed-auth",
	"abandoned":       "abandoned",
	"transfer_failed": "abandoned", // 转接失败并入 abandoned 做分析
}

// Event 一条审计事件行。数值 0 / 空串视为缺省。
type Event struct {
	ID            int64                  `json:"id"`
	TS            time.Time              `json:"ts"`
	Event         string                 `json:"event"`
	SessionID     string                 `json:"session_id,omitempty"`
	MC            string                 `json:"mc,omitempty"`
	LoadID        string                 `json:"load_id,omitempty"`
	Sentiment     string                 `json:"sentiment,omitempty"`
	Rounds        int                    `json:"rounds,omitempty"`
	AgreedRate    float64                `json:"agreed_rate,omitempty"`
	LoadboardRate float64                `json:"loadboard_rate,omitempty"`
	EquipmentType string                 `json:"equipment_type,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// Offer 会话内的一次出价（双方）。
type Offer struct {
	SessionID string    `json:"session_id"`
	Who       string    `json:"who"` // carrier | agent
	Value     float64   `json:"value"`
	T         time.Time `json:"t"`
}

// ToolCall 会话内的一次工具调用记录。
type ToolCall struct {
	SessionID string                 `json:"session_id"`
	Fn        string                 `json:"fn"`
	OK        *bool                  `json:"ok,omitempty"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

// Utterance 会话文字记录的一行。
type Utterance struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"` // user | assistant
	Text      string `json:"text"`
}

// Journal 事件存储：SQLite 行存 + JSONL 审计附加文件。
// 引擎本身不发事件，这里收的是调用层上报的 Decision 与通话产物。
type Journal struct {
	db        *sql.DB
	auditPath string

	mu  sync.Mutex // 串行化 JSONL 追加
	now func() time.Time
}

// Open 打开（必要时建表）。auditPath 为空则关闭文件审计。
func Open(dbPath, auditPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// modernc 驱动同一连接内才可见未提交 schema，限制连接数避免踩空。
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if auditPath != "" {
		if err := os.MkdirAll(filepath.Dir(auditPath), 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	return &Journal{db: db, auditPath: auditPath, now: func() time.Time { return time.Now().UTC() }}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			event TEXT NOT NULL,
			session_id TEXT,
			mc TEXT,
			load_id TEXT,
			sentiment TEXT,
			rounds INTEGER,
			agreed_rate REAL,
			loadboard_rate REAL,
			equipment_type TEXT,
			extra TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
		`CREATE TABLE IF NOT EXISTS offers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			who TEXT NOT NULL,
			value REAL NOT NULL,
			t TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_session ON offers(session_id)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			fn TEXT NOT NULL,
			ok INTEGER,
			info TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id)`,
		`CREATE TABLE IF NOT EXISTS utterances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			t TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(session_id)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("journal migrate: %w", err)
		}
	}
	return nil
}

// Close 关闭底层连接。
func (j *Journal) Close() error { return j.db.Close() }

// Record 处理一条上报：始终追加 JSONL 审计；按事件名落相应的行。
// data 里缺 session_id 时补一个 uuid，保证后续产物能归并。
func (j *Journal) Record(event string, data map[string]interface{}) (string, error) {
	if event == "" {
		event = "unspecified"
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	now := j.now()

	sid := strFrom(data, "session_id")
	if sid == "" {
		sid = strFrom(data, "sessionId")
	}
	if sid == "" {
		sid = uuid.NewString()
		data["session_id"] = sid
	}

	if err := j.appendAudit(now, event, data); err != nil {
		return sid, err
	}

	name := strings.ToLower(event)
	if label, ok := finalLabels[name]; ok {
		if err := j.insertFinal(now, label, sid, data); err != nil {
			return sid, err
		}
		return sid, nil
	}

	switch name {
	case "offer":
		who := strings.ToLower(strFrom(data, "who"))
		if who == "" {
			who = "carrier"
		}
		if v, ok := numFrom(data, "value"); ok {
			return sid, j.insertOffer(Offer{SessionID: sid, Who: who, Value: v, T: now})
		}
	case "tool-call":
		fn := strFrom(data, "fn")
		if fn == "" {
			fn = "unknown"
		}
		info := map[string]interface{}{}
		for k, v := range data {
			if k != "session_id" && k != "sessionId" && k != "fn" && k != "ok" {
				info[k] = v
			}
		}
		return sid, j.insertToolCall(ToolCall{SessionID: sid, Fn: fn, OK: boolFrom(data, "ok"), Info: info})
	case "final-artifacts":
		return sid, j.insertArtifacts(now, sid, data)
	default:
		// 活动类事件只进 events 表，供 watchdog 判定最后活跃时间。
		return sid, j.insertEventRow(Event{TS: now, Event: name, SessionID: sid, Extra: data})
	}
	return sid, nil
}

// RecordDecisionAudit 供 evaluate 调用链落一条 agent 出价（counter 类决策）。
func (j *Journal) RecordDecisionAudit(sessionID string, counterRate float64) error {
	if sessionID == "" || counterRate <= 0 {
		return nil
	}
	return j.insertOffer(Offer{SessionID: sessionID, Who: "agent", Value: counterRate, T: j.now()})
}

func (j *Journal) insertFinal(now time.Time, label, sid string, data map[string]interface{}) error {
	ev := Event{
		TS:            now,
		Event:         label,
		SessionID:     sid,
		MC:            strFrom(data, "mc"),
		LoadID:        strFrom(data, "load_id"),
		Sentiment:     strFrom(data, "sentiment"),
		EquipmentType: strFrom(data, "equipment_type"),
		Extra:         data,
	}
	if v, ok := numFrom(data, "rounds"); ok {
		ev.Rounds = int(v)
	}
	if v, ok := numFrom(data, "agreed_rate"); ok {
		ev.AgreedRate = v
	}
	if v, ok := numFrom(data, "loadboard_rate"); ok {
		ev.LoadboardRate = v
	}
	if err := j.insertEventRow(ev); err != nil {
		return err
	}
	// booked 时补两条出价：承运方旧字段 quoted_rate 与我方成交价。
	if v, ok := numFrom(data, "quoted_rate"); ok {
		if err := j.insertOffer(Offer{SessionID: sid, Who: "carrier", Value: v, T: now}); err != nil {
			return err
		}
	}
	if ev.AgreedRate > 0 {
		if err := j.insertOffer(Offer{SessionID: sid, Who: "agent", Value: ev.AgreedRate, T: now}); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) insertArtifacts(now time.Time, sid string, data map[string]interface{}) error {
	for _, raw := range listFrom(data, "offers") {
		o, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		v, ok := numFrom(o, "value")
		if !ok {
			continue
		}
		who := strings.ToLower(strFrom(o, "who"))
		if who == "" {
			who = "carrier"
		}
		t := now
		if ts := strFrom(o, "t"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, strings.Replace(ts, "Z", "+00:00", 1)); err == nil {
				t = parsed
			} else if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				t = parsed
			}
		}
		if err := j.insertOffer(Offer{SessionID: sid, Who: who, Value: v, T: t}); err != nil {
			return err
		}
	}
	for _, raw := range listFrom(data, "tool_calls") {
		tc, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fn := strFrom(tc, "fn")
		if fn == "" {
			fn = "unknown"
		}
		info := map[string]interface{}{}
		for k, v := range tc {
			if k != "fn" && k != "ok" {
				info[k] = v
			}
		}
		if err := j.insertToolCall(ToolCall{SessionID: sid, Fn: fn, OK: boolFrom(tc, "ok"), Info: info}); err != nil {
			return err
		}
	}
	for _, raw := range listFrom(data, "transcript") {
		line, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		text := strings.TrimSpace(strFrom(line, "text"))
		if text == "" {
			continue
		}
		role := strings.ToLower(strFrom(line, "role"))
		if role == "" {
			role = "user"
		}
		if err := j.insertUtterance(Utterance{SessionID: sid, Role: role, Text: text}, now); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvent 直接落一条事件行（watchdog 标记 abandoned 用）。
func (j *Journal) InsertEvent(ev Event) error {
	if ev.TS.IsZero() {
		ev.TS = j.now()
	}
	return j.insertEventRow(ev)
}

func (j *Journal) insertEventRow(ev Event) error {
	extra := ""
	if len(ev.Extra) > 0 {
		b, err := json.Marshal(ev.Extra)
		if err == nil {
			extra = string(b)
		}
	}
	_, err := j.db.Exec(
		`INSERT INTO events (ts, event, session_id, mc, load_id, sentiment, rounds, agreed_rate, loadboard_rate, equipment_type, extra)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ev.TS.Format(time.RFC3339Nano), ev.Event, ev.SessionID, ev.MC, ev.LoadID, ev.Sentiment,
		ev.Rounds, ev.AgreedRate, ev.LoadboardRate, ev.EquipmentType, extra,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (j *Journal) insertOffer(o Offer) error {
	_, err := j.db.Exec(`INSERT INTO offers (session_id, who, value, t) VALUES (?,?,?,?)`,
		o.SessionID, o.Who, o.Value, o.T.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (j *Journal) insertToolCall(tc ToolCall) error {
	info := ""
	if len(tc.Info) > 0 {
		if b, err := json.Marshal(tc.Info); err == nil {
			info = string(b)
		}
	}
	var ok interface{}
	if tc.OK != nil {
		if *tc.OK {
			ok = 1
		} else {
			ok = 0
		}
	}
	_, err := j.db.Exec(`INSERT INTO tool_calls (session_id, fn, ok, info) VALUES (?,?,?,?)`,
		tc.SessionID, tc.Fn, ok, info)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

func (j *Journal) insertUtterance(u Utterance, t time.Time) error {
	_, err := j.db.Exec(`INSERT INTO utterances (session_id, role, text, t) VALUES (?,?,?,?)`,
		u.SessionID, u.Role, u.Text, t.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert utterance: %w", err)
	}
	return nil
}

func (j *Journal) appendAudit(now time.Time, event string, data map[string]interface{}) error {
	if j.auditPath == "" {
		return nil
	}
	record := map[string]interface{}{
		"ts":    now.Format(time.RFC3339Nano),
		"event": event,
		"data":  data,
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func strFrom(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func numFrom(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		if v == "" {
			return 0, false
		}
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func boolFrom(m map[string]interface{}, key string) *bool {
	if v, ok := m[key].(bool); ok {
		return &v
	}
	return nil
}

func listFrom(m map[string]interface{}, key string) []interface{} {
	if v, ok := m[key].([]interface{}); ok {
		return v
	}
	return nil
}
