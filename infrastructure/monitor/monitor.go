package monitor

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 议价指标
	decisions    *prometheus.CounterVec
	counterRate  prometheus.Gauge
	agreedRate   prometheus.Gauge
	roundsPlayed prometheus.Histogram

	// 资质核验指标
	verifications *prometheus.CounterVec
	fmcsaErrors   prometheus.Counter

	// 货源指标
	loadSearches prometheus.Counter
	loadMatches  prometheus.Histogram
	catalogSize  prometheus.Gauge

	// 会话指标
	eventsRecorded  *prometheus.CounterVec
	sessionsExpired prometheus.Counter

	// 系统指标
	wsClients    prometheus.Gauge
	wsEvents     prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	mu sync.RWMutex
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "rd",
		Subsystem: "desk",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()

	// 创建factory
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		// 议价指标
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "议价裁决总数",
			},
			[]string{"kind"},
		),
		counterRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_counter_rate",
			Help:      "最近一次还价",
		}),
		agreedRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_agreed_rate",
			Help:      "最近一次成交价",
		}),
		roundsPlayed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rounds_played",
			Help:      "终局时的回合数分布",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		// 资质核验指标
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "verifications_total",
				Help:      "资质核验总数",
			},
			[]string{"outcome"},
		),
		fmcsaErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fmcsa_errors_total",
			Help:      "FMCSA 上游错误总数",
		}),

		// 货源指标
		loadSearches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "load_searches_total",
			Help:      "货源检索总数",
		}),
		loadMatches: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "load_matches",
			Help:      "单次检索命中数分布",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		catalogSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "catalog_size",
			Help:      "当前货源目录条数",
		}),

		// 会话指标
		eventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_recorded_total",
				Help:      "落盘事件总数",
			},
			[]string{"event"},
		),
		sessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions_expired_total",
			Help:      "清扫判弃会话总数",
		}),

		// 系统指标
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_clients",
			Help:      "当前 WebSocket 订阅数",
		}),
		wsEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_events_total",
			Help:      "推送给订阅者的事件总数",
		}),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "HTTP请求总数",
			},
			[]string{"path"},
		),
		httpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_errors_total",
				Help:      "HTTP错误总数",
			},
			[]string{"path"},
		),
		httpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_latency_seconds",
				Help:      "HTTP请求延迟（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}

	return m
}

// 议价相关方法
func (m *Monitor) RecordDecision(kind string) {
	m.decisions.WithLabelValues(kind).Inc()
}

func (m *Monitor) UpdateCounterRate(value float64) {
	m.counterRate.Set(value)
}

func (m *Monitor) UpdateAgreedRate(value float64) {
	m.agreedRate.Set(value)
}

func (m *Monitor) RecordRoundsPlayed(rounds int) {
	m.roundsPlayed.Observe(float64(rounds))
}

// 资质核验相关方法
func (m *Monitor) RecordVerification(outcome string) {
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Monitor) RecordFMCSAError() {
	m.fmcsaErrors.Inc()
}

// 货源相关方法
func (m *Monitor) RecordLoadSearch(matches int) {
	m.loadSearches.Inc()
	m.loadMatches.Observe(float64(matches))
}

func (m *Monitor) UpdateCatalogSize(n int) {
	m.catalogSize.Set(float64(n))
}

// 会话相关方法
func (m *Monitor) RecordEvent(label string) {
	m.eventsRecorded.WithLabelValues(label).Inc()
}

func (m *Monitor) RecordSessionExpired(n int) {
	m.sessionsExpired.Add(float64(n))
}

// 系统相关方法
func (m *Monitor) RecordWSSubscribe() {
	m.wsClients.Inc()
}

func (m *Monitor) RecordWSUnsubscribe() {
	m.wsClients.Dec()
}

func (m *Monitor) RecordWSEvent() {
	m.wsEvents.Inc()
}

func (m *Monitor) RecordHTTPRequest(path string) {
	m.httpRequests.WithLabelValues(path).Inc()
}

func (m *Monitor) RecordHTTPError(path string) {
	m.httpErrors.WithLabelValues(path).Inc()
}

func (m *Monitor) RecordHTTPLatency(path string, seconds float64) {
	m.httpLatency.WithLabelValues(path).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
