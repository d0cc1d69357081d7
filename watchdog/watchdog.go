// Package watchdog 定期清扫挂起的通话会话：有足迹但迟迟没有终局
// 事件的会话，超过 TTL 后补记 abandoned，避免看板上永远悬着。
package watchdog

import (
	"context"
	"sync"
	"time"

	"rate-desk-go/infrastructure/alert"
	"rate-desk-go/infrastructure/logger"
	"rate-desk-go/journal"
)

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC 默认使用 UTC 时间。
var NowUTC Clock = realClock{}

// Store 清扫所需的最小日志面。*journal.Journal 满足该接口。
type Store interface {
	SessionIDs() ([]string, error)
	HasFinalEvent(sessionID string) (bool, error)
	LastActivity(sessionID string) (time.Time, bool, error)
	InsertEvent(ev journal.Event) error
}

// Config 清扫配置
type Config struct {
	Interval time.Duration `yaml:"interval"` // 扫描间隔
	TTL      time.Duration `yaml:"ttl"`      // 无活动判弃阈值
}

// Sweeper 会话清扫器
type Sweeper struct {
	store    Store
	log      *logger.Logger
	alerts   *alert.Manager
	clock    Clock
	interval time.Duration
	ttl      time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	totalSweeps   int64
	totalExpired  int64
	lastSweepTime time.Time
}

// NewSweeper 创建清扫器；Interval/TTL 非法时回退默认值。
func NewSweeper(store Store, log *logger.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &Sweeper{
		store:    store,
		log:      log,
		clock:    NowUTC,
		interval: cfg.Interval,
		ttl:      cfg.TTL,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// SetClock 注入时钟（测试用）。须在 Start 前调用。
func (s *Sweeper) SetClock(c Clock) { s.clock = c }

// SetAlerts 注入告警管理器。须在 Start 前调用。
func (s *Sweeper) SetAlerts(m *alert.Manager) { s.alerts = m }

// Start 启动清扫循环
func (s *Sweeper) Start(ctx context.Context) error {
	go s.sweepLoop(ctx)
	return nil
}

// Stop 停止并等待循环退出
func (s *Sweeper) Stop() error {
	close(s.stopChan)
	<-s.doneChan
	return nil
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if n, err := s.Sweep(); err != nil {
				if s.log != nil {
					s.log.Error("session sweep failed: " + err.Error())
				}
				if s.alerts != nil {
					_ = s.alerts.Error("session sweep failed", map[string]interface{}{"error": err.Error()})
				}
			} else if n > 0 {
				if s.log != nil {
					s.log.LogSession("", "sweep-expired", map[string]interface{}{"expired": n})
				}
				if s.alerts != nil {
					_ = s.alerts.Warning("stale sessions expired", map[string]interface{}{"expired": n})
				}
			}
		}
	}
}

// Sweep 执行一次清扫，返回本次判弃的会话数。
func (s *Sweeper) Sweep() (int, error) {
	s.mu.Lock()
	s.totalSweeps++
	s.lastSweepTime = s.clock.Now()
	s.mu.Unlock()

	ids, err := s.store.SessionIDs()
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	expired := 0
	var sweepErr error
	for _, sid := range ids {
		done, err := s.store.HasFinalEvent(sid)
		if err != nil {
			sweepErr = err
			continue
		}
		if done {
			continue
		}
		last, found, err := s.store.LastActivity(sid)
		if err != nil {
			sweepErr = err
			continue
		}
		if !found || now.Sub(last) < s.ttl {
			continue
		}
		ev := journal.Event{
			TS:        now,
			Event:     "abandoned",
			SessionID: sid,
			Extra:     map[string]interface{}{"source": "watchdog"},
		}
		if err := s.store.InsertEvent(ev); err != nil {
			sweepErr = err
			continue
		}
		expired++
	}

	s.mu.Lock()
	s.totalExpired += int64(expired)
	s.mu.Unlock()
	return expired, sweepErr
}

// Stats 清扫统计
type Stats struct {
	TotalSweeps   int64
	TotalExpired  int64
	LastSweepTime time.Time
}

// GetStats 返回统计快照
func (s *Sweeper) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalSweeps:   s.totalSweeps,
		TotalExpired:  s.totalExpired,
		LastSweepTime: s.lastSweepTime,
	}
}
