// Package server 暴露议价台的 HTTP 面：资质核验、货源检索、报价评估、
// 事件上报与看板查询。引擎状态完全由调用方携带，服务端不存会话。
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"rate-desk-go/config"
	"rate-desk-go/eligibility"
	"rate-desk-go/infrastructure/alert"
	"rate-desk-go/infrastructure/logger"
	"rate-desk-go/infrastructure/monitor"
	"rate-desk-go/journal"
	"rate-desk-go/loads"
	"rate-desk-go/negotiation"
)

// Server 聚合所有依赖；零值不可用，经 New 构造。
type Server struct {
	apiKey   string
	verifier eligibility.Verifier
	catalog  *loads.Catalog
	journal  *journal.Journal
	hub      *Hub
	mon      *monitor.Monitor
	log      *logger.Logger
	alerts   *alert.Manager
	started  time.Time

	mu  sync.RWMutex
	neg *negotiation.Negotiator // 热更新可整体换掉
}

// Options 按需注入依赖；nil 字段对应能力不可用时返回 503。
type Options struct {
	Config   config.AppConfig
	Neg      *negotiation.Negotiator
	Verifier eligibility.Verifier
	Catalog  *loads.Catalog
	Journal  *journal.Journal
	Monitor  *monitor.Monitor
	Logger   *logger.Logger
	Alerts   *alert.Manager
}

// New 构造 Server。
func New(opts Options) *Server {
	return &Server{
		apiKey:   opts.Config.Server.APIKey,
		neg:      opts.Neg,
		verifier: opts.Verifier,
		catalog:  opts.Catalog,
		journal:  opts.Journal,
		hub:      NewHub(),
		mon:      opts.Monitor,
		log:      opts.Logger,
		alerts:   opts.Alerts,
		started:  time.Now().UTC(),
	}
}

// Hub 暴露事件分发器（watchdog 等后台组件也可向订阅者推送）。
func (s *Server) Hub() *Hub { return s.hub }

// SetNegotiator 原子替换决策引擎（配置热更新路径）。
func (s *Server) SetNegotiator(neg *negotiation.Negotiator) {
	s.mu.Lock()
	s.neg = neg
	s.mu.Unlock()
}

func (s *Server) negotiator() *negotiation.Negotiator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.neg
}

// Handler 组装路由。业务端点都走 x-api-key 鉴权，/health 除外。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/verify_mc", s.guard(s.handleVerifyMC))
	mux.HandleFunc("/search_loads", s.guard(s.handleSearchLoads))
	mux.HandleFunc("/evaluate_offer", s.guard(s.handleEvaluateOffer))
	mux.HandleFunc("/log_event", s.guard(s.handleLogEvent))
	mux.HandleFunc("/analytics/summary", s.guard(s.handleAnalyticsSummary))
	mux.HandleFunc("/analytics/db_usage", s.guard(s.handleDBUsage))
	mux.HandleFunc("/calls", s.guard(s.handleCalls))
	mux.HandleFunc("/calls/", s.guard(s.handleCallDetail))
	mux.HandleFunc("/ws/events", s.guard(s.handleWS))
	return mux
}

// guard 鉴权 + 指标中间件。
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := routeLabel(r.URL.Path)
		if s.mon != nil {
			s.mon.RecordHTTPRequest(path)
		}
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			if s.mon != nil {
				s.mon.RecordHTTPError(path)
			}
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		start := time.Now()
		next(w, r)
		if s.mon != nil {
			s.mon.RecordHTTPLatency(path, time.Since(start).Seconds())
		}
	}
}

// routeLabel 把 /calls/{id} 折叠成一个标签，避免指标基数爆炸。
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/calls/") && path != "/calls/" {
		return "/calls/{id}"
	}
	return path
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"uptime_s": int(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
