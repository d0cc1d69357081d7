package container

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"rate-desk-go/config"
	"rate-desk-go/eligibility"
	"rate-desk-go/infrastructure/alert"
	"rate-desk-go/infrastructure/logger"
	"rate-desk-go/infrastructure/monitor"
	internalcfg "rate-desk-go/internal/config"
	"rate-desk-go/journal"
	"rate-desk-go/loads"
	"rate-desk-go/negotiation"
	"rate-desk-go/server"
	"rate-desk-go/watchdog"
)

// Container 依赖注入容器，管理议价台所有组件的构建与生命周期。
type Container struct {
	cfgPath string
	cfg     config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 领域组件
	catalog    *loads.Catalog
	journal    *journal.Journal
	negotiator *negotiation.Negotiator
	verifier   *eligibility.Client

	// 服务面
	server      *server.Server
	sweeper     *watchdog.Sweeper
	reloader    *internalcfg.HotReloader
	watcher     *config.Watcher
	watchCancel context.CancelFunc

	apiServer     *http.Server
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfgPath:   configPath,
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}, nil
}

// SetListenAddr 覆盖 API 监听地址。须在 Build 前调用。
func (c *Container) SetListenAddr(addr string) {
	if addr != "" {
		c.cfg.Server.Addr = addr
	}
}

// SetMetricsAddr 覆盖指标监听地址。须在 Build 前调用。
func (c *Container) SetMetricsAddr(addr string) {
	if addr != "" {
		c.cfg.Metrics.Addr = addr
	}
}

// Config 当前生效配置的快照。
func (c *Container) Config() config.AppConfig { return c.cfg }

// Logger 容器持有的日志器；Build 之后可用。
func (c *Container) Logger() *logger.Logger { return c.logger }

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildDomain(); err != nil {
		return fmt.Errorf("build domain failed: %w", err)
	}

	if err := c.buildServer(); err != nil {
		return fmt.Errorf("build server failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewZapChannel("log", c.logger)}, time.Minute)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildDomain() error {
	c.catalog = loads.NewCatalog()
	if f, err := os.Open(c.cfg.Loads.CSVPath); err != nil {
		// 没有货源文件可以先跑起来，目录为空只是搜不到货。
		c.logger.Warn("load board csv unavailable", zap.String("path", c.cfg.Loads.CSVPath), zap.Error(err))
	} else {
		if err := c.catalog.FromCSV(f); err != nil {
			c.logger.Warn("load board csv parse failed", zap.Error(err))
		}
		f.Close()
	}
	c.monitor.UpdateCatalogSize(c.catalog.Len())

	var err error
	c.journal, err = journal.Open(c.cfg.Journal.DBPath, c.cfg.Journal.AuditPath)
	if err != nil {
		return fmt.Errorf("open journal failed: %w", err)
	}

	c.negotiator, err = negotiation.New(c.cfg.Negotiation)
	if err != nil {
		return fmt.Errorf("build negotiator failed: %w", err)
	}

	c.verifier = &eligibility.Client{
		BaseURL:    c.cfg.FMCSA.BaseURL,
		WebKey:     c.cfg.FMCSA.WebKey,
		HTTPClient: eligibility.NewDefaultHTTPClient(),
		Limiter:    eligibility.NewTokenBucketLimiter(2, 4),
		Mock:       c.cfg.FMCSA.Mock,
	}

	c.logger.Info("domain components built")
	return nil
}

func (c *Container) buildServer() error {
	c.server = server.New(server.Options{
		Config:   c.cfg,
		Neg:      c.negotiator,
		Verifier: c.verifier,
		Catalog:  c.catalog,
		Journal:  c.journal,
		Monitor:  c.monitor,
		Logger:   c.logger,
		Alerts:   c.alerts,
	})

	if c.cfg.Watchdog.Enabled {
		c.sweeper = watchdog.NewSweeper(c.journal, c.logger, watchdog.Config{
			Interval: c.cfg.Watchdog.Interval(),
			TTL:      c.cfg.Watchdog.TTL(),
		})
		c.sweeper.SetAlerts(c.alerts)
	}

	reloader, err := internalcfg.NewHotReloader(c.cfgPath, internalcfg.DefaultHotReloadConfig())
	if err != nil {
		// fsnotify 起不来（部分容器环境拿不到 inotify），退回 mtime 轮询。
		c.logger.Warn("fsnotify hot reload unavailable, falling back to polling", zap.Error(err))
		c.watcher = &config.Watcher{Path: c.cfgPath, Interval: 2 * time.Second}
	} else {
		reloader.SetReloadHandler(func(interface{}) error {
			next, err := config.LoadWithEnvOverrides(c.cfgPath)
			if err != nil {
				_ = c.alerts.Warning("hot reload rejected", map[string]interface{}{"error": err.Error()})
				return err
			}
			return c.applyPolicyReload(next)
		})
		c.reloader = reloader
	}

	c.logger.Info("server built")
	return nil
}

// applyPolicyReload 校验通过才换引擎，坏配置不影响在跑的服务。
func (c *Container) applyPolicyReload(next config.AppConfig) error {
	nextNeg, err := negotiation.New(next.Negotiation)
	if err != nil {
		_ = c.alerts.Warning("hot reload rejected", map[string]interface{}{"error": err.Error()})
		return err
	}
	c.server.SetNegotiator(nextNeg)
	c.logger.Info("negotiation policy reloaded")
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}

	c.lifecycle.Register(&httpServerComponent{
		name:    "api_server",
		handler: c.server.Handler(),
		addr:    c.cfg.Server.Addr,
		logger:  c.logger,
		server:  &c.apiServer,
	})

	if c.sweeper != nil {
		c.lifecycle.Register(&startStopComponent{
			name:  "session_sweeper",
			start: c.sweeper.Start,
			stop:  c.sweeper.Stop,
		})
	}

	if c.reloader != nil {
		c.lifecycle.Register(&startStopComponent{
			name:  "hot_reloader",
			start: c.reloader.Start,
			stop:  c.reloader.Stop,
		})
	}

	if c.watcher != nil {
		// 轮询版 Start 是阻塞循环，放到后台跑，停止靠 cancel。
		c.lifecycle.Register(&startStopComponent{
			name: "config_watcher",
			start: func(ctx context.Context) error {
				wctx, cancel := context.WithCancel(ctx)
				c.watchCancel = cancel
				go func() {
					_ = c.watcher.Start(wctx, func(next config.AppConfig) {
						_ = c.applyPolicyReload(next)
					})
				}()
				return nil
			},
			stop: func() error {
				if c.watchCancel != nil {
					c.watchCancel()
				}
				return nil
			},
		})
	}
}

// Start 启动全部组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting rate desk...",
		zap.String("addr", c.cfg.Server.Addr), zap.String("env", c.cfg.Env))

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("rate desk started")
	return nil
}

// Stop 逆序停止组件并释放资源
func (c *Container) Stop() error {
	c.logger.Info("stopping rate desk...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if c.journal != nil {
		if cerr := c.journal.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if c.logger != nil {
		c.logger.Close()
	}
	return err
}

// HealthCheck 检查所有已注册组件
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}
