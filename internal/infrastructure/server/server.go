package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/NTGPC/ntglogin-sub000/internal/api/http"
	"github.com/NTGPC/ntglogin-sub000/internal/api/middleware"
	"github.com/NTGPC/ntglogin-sub000/internal/api/ws"
	"github.com/NTGPC/ntglogin-sub000/internal/app"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/job"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/profile"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/session"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/workflow"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/config"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/logging"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/tracing"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/storage"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store/memory"
)

const snapshotInterval = time.Minute

// Option customises server construction.
type Option func(*options)

type options struct {
	logger    *logging.Logger
	launchers []browser.Launcher
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLaunchers replaces the engines named in the config.
func WithLaunchers(l ...browser.Launcher) Option {
	return func(o *options) { o.launchers = l }
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	app      *app.Service
	store    *memory.Store
	sessions *session.Orchestrator
	chain    *browser.Chain
	queue    job.Queue
	pool     *job.Pool
	updater  *job.Updater
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	stopSnapshots context.CancelFunc
	snapshots     sync.WaitGroup
	closeOnce     sync.Once
}

// NewServer builds every component from cfg.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = newLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("initializing server",
		zap.String("port", cfg.Server.Port),
		zap.Strings("engines", cfg.Browser.Engines),
		zap.String("data_file", cfg.Storage.DataFile),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	tracer := tracing.New(logger.Component("tracing"))

	st, err := memory.Open(cfg.Storage.DataFile)
	if err != nil {
		return nil, err
	}
	if err := stopStaleSessions(ctx, st); err != nil {
		return nil, err
	}
	if cfg.Storage.PresetsFile != "" {
		if err := seedPresets(ctx, st, cfg.Storage.PresetsFile, logger.Logger); err != nil {
			return nil, err
		}
	}

	sealer, err := crypto.NewSealer(cfg.Storage.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if !sealer.Enabled() {
		logger.Warn("FILE_ENCRYPTION_KEY not set, proxy passwords are stored in clear")
	}

	launchers := o.launchers
	if launchers == nil {
		if launchers, err = Launchers(cfg.Browser, logger.Logger); err != nil {
			return nil, err
		}
	}
	chain := browser.NewChain(logger.Component("browser"), launchers...).WithMetrics(metrics)

	injector, err := browser.NewInjector(logger.Component("inject"))
	if err != nil {
		return nil, err
	}
	dirs := browser.NewProfileDirs(cfg.Browser.ProfilesDir, logger.Component("profiledir"))

	orch := session.New(session.Deps{
		Profiles: st,
		Proxies:  st,
		Sessions: st,
		Dirs:     dirs,
		Launcher: chain,
		Injector: injector.WithMetrics(metrics),
		Sealer:   sealer,
	}, session.Options{
		ExecutablePath: cfg.Browser.ExecutablePath,
		Headless:       cfg.Browser.Headless,
		LaunchTimeout:  cfg.Browser.LaunchTimeout,
	}, logger.Component("session")).WithMetrics(metrics)

	checker := proxy.NewChecker(st, sealer, proxy.Options{
		ProbeURL:      cfg.Proxy.ProbeURL,
		Timeout:       cfg.Proxy.Timeout,
		Concurrency:   cfg.Proxy.Concurrency,
		RatePerSecond: cfg.Proxy.RatePerSecond,
	}, logger.Component("proxy")).WithMetrics(metrics)

	shots, err := storage.NewScreenshots(cfg.Storage.ScreenshotsDir, logger.Component("screenshots"))
	if err != nil {
		return nil, err
	}
	executor := workflow.NewExecutor(shots, cfg.Workers.ActionTimeout, logger.Component("workflow")).WithMetrics(metrics)

	queue, err := newQueue(ctx, cfg.Workers)
	if err != nil {
		return nil, err
	}
	updater := job.NewUpdater(st, logger.Component("updater"))
	jobs := job.NewService(job.Deps{
		Jobs:      st,
		Workflows: st,
		Profiles:  st,
		Sessions:  orch,
		Executor:  executor,
		Queue:     queue,
		Updater:   updater,
		Tracer:    tracer,
		Owner:     queueOwner(cfg),
	}, logger.Component("job")).WithMetrics(metrics)
	pool := job.NewPool(cfg.Workers.Size, queue, jobs.Run, logger.Component("pool")).WithDrop(jobs.Abandon)

	profiles := profile.NewService(profile.Deps{
		Profiles:  st,
		Presets:   st,
		Sessions:  st,
		Jobs:      st,
		Workflows: st,
		Closer:    orch,
		Dirs:      dirs,
		Refresher: updater,
	}, logger.Component("profile"))

	svc := app.New(app.Deps{
		Store:    st,
		Sealer:   sealer,
		Profiles: profiles,
		Sessions: orch,
		Checker:  checker,
		Jobs:     jobs,
		Updater:  updater,
	}, logger.Component("app"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(corsConfig(cfg.Server)))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		if cfg.RateLimit.GlobalRPS > 0 {
			router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimit.GlobalRPS,
				Burst:             2 * cfg.RateLimit.GlobalRPS,
			}))
		}
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(svc, metrics, logger.Component("http"), cfg.Logging.Development)
	handlers.Register(router)
	router.GET("/executions/stream", ws.NewHandler(updater, metrics, logger.Component("ws")).HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	logger.Info("server initialized", zap.Strings("engines", chain.Engines()))

	return &Server{
		router:   router,
		app:      svc,
		store:    st,
		sessions: orch,
		chain:    chain,
		queue:    queue,
		pool:     pool,
		updater:  updater,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// App returns the service facade.
func (s *Server) App() *app.Service { return s.app }

// Start launches the worker pool and periodic snapshots.
func (s *Server) Start(ctx context.Context) {
	s.pool.Start(ctx)

	ctx, s.stopSnapshots = context.WithCancel(ctx)
	s.snapshots.Add(1)
	go func() {
		defer s.snapshots.Done()
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.saveSnapshot()
			}
		}
	}()
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels running executions, fails the
// queued ones, closes every browser and writes a final snapshot. Workers and
// browsers share the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("shutting down server")

		if s.httpSrv != nil {
			if e := s.httpSrv.Shutdown(ctx); e != nil {
				err = errors.Join(err, fmt.Errorf("failed to stop http server: %w", e))
			}
		}
		if s.stopSnapshots != nil {
			s.stopSnapshots()
			s.snapshots.Wait()
		}
		if e := s.pool.Stop(ctx); e != nil {
			err = errors.Join(err, fmt.Errorf("failed to stop workers: %w", e))
		}
		if e := s.sessions.Shutdown(ctx); e != nil {
			err = errors.Join(err, fmt.Errorf("failed to close sessions: %w", e))
		}
		s.updater.Stop()
		if e := s.chain.Close(); e != nil {
			s.logger.Warn("failed to close browser engines", zap.Error(e))
		}
		s.saveSnapshot()
		s.tracer.Close()
		_ = s.logger.Sync()
	})
	return err
}

func (s *Server) saveSnapshot() {
	if s.config.Storage.DataFile == "" {
		return
	}
	if err := s.store.Save(s.config.Storage.DataFile); err != nil {
		s.logger.Error("failed to save snapshot", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	lc.OutputPaths = append(lc.OutputPaths, cfg.Outputs...)
	return logging.New(lc)
}

func corsConfig(cfg config.ServerConfig) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.AllowOrigins) > 0 {
		c.AllowOrigins = cfg.AllowOrigins
		c.AllowCredentials = true
	}
	return c
}

// Launchers builds the engine chain named in cfg. A remote worker URL puts
// the remote engine first unless it is listed explicitly.
func Launchers(cfg config.BrowserConfig, logger *zap.Logger) ([]browser.Launcher, error) {
	var out []browser.Launcher
	remote := false
	for _, name := range cfg.Engines {
		switch name {
		case "rod":
			out = append(out, browser.NewRodLauncher(logger))
		case "chromedp":
			out = append(out, browser.NewChromedpLauncher(logger))
		case "playwright":
			out = append(out, browser.NewPlaywrightLauncher(logger))
		case "remote":
			if cfg.RemoteURL == "" {
				return nil, fmt.Errorf("engine remote requires BROWSER_REMOTE_URL")
			}
			out = append(out, browser.NewRemoteLauncher(cfg.RemoteURL, logger))
			remote = true
		default:
			return nil, fmt.Errorf("unknown browser engine %q", name)
		}
	}
	if cfg.RemoteURL != "" && !remote {
		out = append([]browser.Launcher{browser.NewRemoteLauncher(cfg.RemoteURL, logger)}, out...)
	}
	return out, nil
}

// queueOwner names this process's store on a shared Redis queue, so tasks
// popped by another process go back to the one holding their executions.
func queueOwner(cfg *config.Config) string {
	if cfg.Workers.RedisAddr == "" {
		return ""
	}
	host, _ := os.Hostname()
	if cfg.Storage.DataFile == "" {
		return fmt.Sprintf("%s:pid-%d", host, os.Getpid())
	}
	if abs, err := filepath.Abs(cfg.Storage.DataFile); err == nil {
		return host + ":" + abs
	}
	return host + ":" + cfg.Storage.DataFile
}

func newQueue(ctx context.Context, cfg config.WorkerConfig) (job.Queue, error) {
	if cfg.RedisAddr != "" {
		q, err := job.NewRedisQueue(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return job.NewChanQueue(cfg.QueueSize), nil
}

// stopStaleSessions marks sessions left running by a previous process as
// stopped; their browsers are gone.
func stopStaleSessions(ctx context.Context, st *memory.Store) error {
	stale, err := st.ListSessions(ctx, types.SessionFilter{Status: types.SessionRunning})
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range stale {
		sess := stale[i]
		sess.Status = types.SessionStopped
		sess.StoppedAt = &now
		if sess.Meta == nil {
			sess.Meta = map[string]any{}
		}
		sess.Meta["stopReason"] = "restart"
		if err := st.UpdateSession(ctx, &sess); err != nil {
			return err
		}
	}
	return nil
}

// seedPresets adds presets from a YAML file whose names are not stored yet.
func seedPresets(ctx context.Context, st *memory.Store, path string, logger *zap.Logger) error {
	presets, err := fingerprint.LoadPresetFile(path)
	if err != nil {
		return err
	}
	existing, err := st.ListPresets(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[p.Name] = true
	}
	added := 0
	for i := range presets {
		if known[presets[i].Name] {
			continue
		}
		if err := st.CreatePreset(ctx, &presets[i]); err != nil {
			return err
		}
		added++
	}
	logger.Info("fingerprint presets seeded", zap.String("file", path), zap.Int("added", added))
	return nil
}
