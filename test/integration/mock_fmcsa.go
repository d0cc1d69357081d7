package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// CarrierRecord 模拟 QCMobile 侧的一条承运方档案。
type CarrierRecord struct {
	DOTNumber string
	LegalName string
	Common    string // authority 状态码："A"/"I"/"N"
	Contract  string
	Broker    string
	OOSReason string // 非空表示存在 out-of-service 记录
}

// MockFMCSA 用 httptest 模拟 QCMobile 的 docket/authority/oos 三个端点，
// 让核验客户端走真实的 HTTP 解析路径。
type MockFMCSA struct {
	mu       sync.Mutex
	carriers map[string]CarrierRecord // key: 纯数字 MC
	requests int
	server   *httptest.Server
}

// NewMockFMCSA 创建并启动模拟服务
func NewMockFMCSA() *MockFMCSA {
	m := &MockFMCSA{carriers: make(map[string]CarrierRecord)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL 服务地址，作为核验客户端的 BaseURL。
func (m *MockFMCSA) URL() string { return m.server.URL }

// AddCarrier 登记一条档案
func (m *MockFMCSA) AddCarrier(mc string, rec CarrierRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carriers[mc] = rec
}

// Requests 返回收到的请求总数
func (m *MockFMCSA) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Reset 清空档案与计数
func (m *MockFMCSA) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carriers = make(map[string]CarrierRecord)
	m.requests = 0
}

// Close 关闭模拟服务
func (m *MockFMCSA) Close() { m.server.Close() }

func (m *MockFMCSA) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()

	if r.URL.Query().Get("webKey") == "" {
		http.Error(w, "missing webKey", http.StatusForbidden)
		return
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/carriers/docket-number/"),
		strings.HasPrefix(path, "/carriers/search/docket-number/"):
		mc := path[strings.LastIndex(path, "/")+1:]
		m.writeDocket(w, mc)
	case strings.HasSuffix(path, "/authority"):
		dot := strings.TrimSuffix(strings.TrimPrefix(path, "/carriers/"), "/authority")
		m.writeAuthority(w, dot)
	case strings.HasSuffix(path, "/oos"):
		dot := strings.TrimSuffix(strings.TrimPrefix(path, "/carriers/"), "/oos")
		m.writeOOS(w, dot)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockFMCSA) lookupByMC(mc string) (CarrierRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.carriers[mc]
	return rec, ok
}

func (m *MockFMCSA) lookupByDOT(dot string) (CarrierRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.carriers {
		if rec.DOTNumber == dot {
			return rec, true
		}
	}
	return CarrierRecord{}, false
}

func (m *MockFMCSA) writeDocket(w http.ResponseWriter, mc string) {
	rec, ok := m.lookupByMC(mc)
	if !ok {
		writeContent(w, []interface{}{})
		return
	}
	writeContent(w, []interface{}{
		map[string]interface{}{
			"carrier": map[string]interface{}{
				"dotNumber": rec.DOTNumber,
				"legalName": rec.LegalName,
			},
		},
	})
}

func (m *MockFMCSA) writeAuthority(w http.ResponseWriter, dot string) {
	rec, ok := m.lookupByDOT(dot)
	if !ok {
		writeContent(w, []interface{}{})
		return
	}
	writeContent(w, []interface{}{
		map[string]interface{}{
			"commonAuthorityStatus":   rec.Common,
			"contractAuthorityStatus": rec.Contract,
			"brokerAuthorityStatus":   rec.Broker,
		},
	})
}

func (m *MockFMCSA) writeOOS(w http.ResponseWriter, dot string) {
	rec, ok := m.lookupByDOT(dot)
	if !ok || rec.OOSReason == "" {
		writeContent(w, []interface{}{})
		return
	}
	writeContent(w, []interface{}{
		map[string]interface{}{"oosReason": rec.OOSReason},
	})
}

func writeContent(w http.ResponseWriter, content interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": content})
}
