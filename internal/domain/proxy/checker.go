package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultProbeURL answers 204 without a body.
const DefaultProbeURL = "https://www.google.com/generate_204"

// Options tunes the checker.
type Options struct {
	ProbeURL      string
	Timeout       time.Duration
	Concurrency   int
	RatePerSecond float64
}

// Result is the verdict for one proxy.
type Result struct {
	ProxyID    int               `json:"proxyId"`
	Status     types.ProxyStatus `json:"status"`
	LatencyMs  *int64            `json:"latencyMs,omitempty"`
	StatusCode int               `json:"statusCode,omitempty"`
	Error      string            `json:"error,omitempty"`
	CheckedAt  time.Time         `json:"checkedAt"`
}

// Checker probes proxies and records their health.
type Checker struct {
	proxies store.Proxies
	sealer  *crypto.Sealer
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics
	limiter *rate.Limiter

	// inflight collapses concurrent checks of the same proxy
	mu       sync.Mutex
	inflight map[int]*call
}

type call struct {
	done   chan struct{}
	result Result
	err    error
}

// NewChecker creates a checker backed by proxies.
func NewChecker(proxies store.Proxies, sealer *crypto.Sealer, opts Options, logger *zap.Logger) *Checker {
	if opts.ProbeURL == "" {
		opts.ProbeURL = DefaultProbeURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Checker{
		proxies:  proxies,
		sealer:   sealer,
		opts:     opts,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, max(1, int(opts.RatePerSecond))),
		inflight: make(map[int]*call),
	}
}

// WithMetrics records check verdicts.
func (c *Checker) WithMetrics(m *monitoring.Metrics) *Checker {
	c.metrics = m
	return c
}

// Check probes one proxy and persists the verdict. A probe failure is a
// "die" verdict, not an error; errors mean the proxy could not be checked
// at all (unknown id, undecryptable credentials, store failure).
func (c *Checker) Check(ctx context.Context, proxyID int) (Result, error) {
	c.mu.Lock()
	if inflight, ok := c.inflight[proxyID]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.result, inflight.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[proxyID] = cl
	c.mu.Unlock()

	cl.result, cl.err = c.check(ctx, proxyID)

	c.mu.Lock()
	delete(c.inflight, proxyID)
	c.mu.Unlock()
	close(cl.done)

	return cl.result, cl.err
}

func (c *Checker) check(ctx context.Context, proxyID int) (Result, error) {
	record, err := c.proxies.GetProxy(ctx, proxyID)
	if err != nil {
		return Result{}, err
	}

	tunnel, err := Resolve(record, c.sealer)
	if err != nil {
		return Result{}, err
	}

	if err := c.proxies.UpdateProxyStatus(ctx, proxyID, types.ProxyChecking, nil, nil); err != nil {
		return Result{}, err
	}

	result := c.probe(ctx, tunnel)
	result.ProxyID = proxyID

	// Persist even if the caller went away so the record never stays "checking".
	writeCtx := context.WithoutCancel(ctx)
	if err := c.proxies.UpdateProxyStatus(writeCtx, proxyID, result.Status, &result.CheckedAt, result.LatencyMs); err != nil {
		return Result{}, err
	}

	var latency time.Duration
	if result.LatencyMs != nil {
		latency = time.Duration(*result.LatencyMs) * time.Millisecond
	}
	c.metrics.RecordProxyCheck(string(tunnel.Type), string(result.Status), latency)

	c.logger.Info("proxy checked",
		zap.Int("proxy_id", proxyID),
		zap.String("proxy", tunnel.String()),
		zap.String("status", string(result.Status)),
		zap.Int("status_code", result.StatusCode),
		zap.String("error", result.Error),
	)
	return result, nil
}

func (c *Checker) probe(ctx context.Context, t *Tunnel) Result {
	transport, err := t.Transport(c.opts.Timeout)
	if err != nil {
		return Result{Status: types.ProxyDie, Error: err.Error(), CheckedAt: time.Now()}
	}
	defer transport.CloseIdleConnections()

	client := resty.New().
		SetTransport(transport).
		SetTimeout(c.opts.Timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeader("User-Agent", "Mozilla/5.0")

	start := time.Now()
	resp, err := client.R().SetContext(ctx).Get(c.opts.ProbeURL)
	elapsed := time.Since(start)
	checkedAt := time.Now()

	if err != nil {
		return Result{Status: types.ProxyDie, Error: err.Error(), CheckedAt: checkedAt}
	}

	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusBadRequest {
		ms := elapsed.Milliseconds()
		return Result{Status: types.ProxyLive, StatusCode: code, LatencyMs: &ms, CheckedAt: checkedAt}
	}
	return Result{Status: types.ProxyDie, StatusCode: code, Error: resp.Status(), CheckedAt: checkedAt}
}

// CheckAll probes every active proxy, bounded by the configured concurrency
// and rate. Individual failures are reported in the results; the returned
// error is set only when listing fails or ctx ends.
func (c *Checker) CheckAll(ctx context.Context) ([]Result, error) {
	proxies, err := c.proxies.ListProxies(ctx, true)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(proxies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i, p := range proxies {
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return err
			}
			res, err := c.Check(gctx, p.ID)
			if err != nil {
				c.logger.Warn("proxy check failed", zap.Int("proxy_id", p.ID), zap.Error(err))
				res = Result{ProxyID: p.ID, Status: p.Status, Error: err.Error(), CheckedAt: time.Now()}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
