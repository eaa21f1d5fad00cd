package quote

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gatti/quote-cache/internal/alert"
	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/platform/resilience"
	"github.com/gatti/quote-cache/internal/pricing"
)

// UpstreamConfig holds the gate's settings.
type UpstreamConfig struct {
	CallTimeout      time.Duration
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// ChainHealth is one chain's upstream health, exposed for readiness checks.
type ChainHealth struct {
	Chain               string    `json:"chain"`
	CircuitState        string    `json:"circuitState"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastSuccess         time.Time `json:"lastSuccess"`
	LastFailure         time.Time `json:"lastFailure"`
	LastError           string    `json:"lastError,omitempty"`
}

// Upstream gates every FetchQuote call with a per-chain circuit breaker and
// a per-call timeout, and tracks per-chain health. Both the synchronous
// request path and the refresh workers go through it, so breaker state is
// shared across all callers of a chain.
type Upstream struct {
	fetcher pricing.Fetcher
	cfg     UpstreamConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	alerts  alert.Notifier

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
	health   map[string]*chainHealth
}

type chainHealth struct {
	mu                  sync.Mutex
	lastSuccess         time.Time
	lastFailure         time.Time
	lastError           string
	consecutiveFailures int
}

// NewUpstream creates the gate. alerts may be nil.
func NewUpstream(fetcher pricing.Fetcher, cfg UpstreamConfig, logger *observability.Logger, metrics *observability.Metrics, alerts alert.Notifier) *Upstream {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if alerts == nil {
		alerts = alert.NewNoopNotifier()
	}
	return &Upstream{
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		alerts:   alerts,
		breakers: make(map[string]*resilience.CircuitBreaker),
		health:   make(map[string]*chainHealth),
	}
}

// Fetch runs the request through the chain's breaker with the per-call
// timeout applied. Returns resilience.ErrCircuitOpen without touching the
// network when the breaker is open.
func (u *Upstream) Fetch(ctx context.Context, req pricing.QuoteRequest) (json.RawMessage, error) {
	chain := strings.ToLower(req.Chain)
	breaker := u.breakerFor(chain)

	callCtx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := resilience.ExecuteWithResult(breaker, callCtx, func(ctx context.Context) (json.RawMessage, error) {
		return u.fetcher.FetchQuote(ctx, req)
	})
	took := time.Since(start)

	if u.metrics != nil {
		u.metrics.RecordUpstreamCall(ctx, chain, took, err == nil)
	}
	u.recordHealth(chain, err)

	return raw, err
}

// Health returns a snapshot of every chain's health, sorted by chain name.
func (u *Upstream) Health() []ChainHealth {
	u.mu.Lock()
	chains := make([]string, 0, len(u.breakers))
	for chain := range u.breakers {
		chains = append(chains, chain)
	}
	u.mu.Unlock()
	sort.Strings(chains)

	out := make([]ChainHealth, 0, len(chains))
	for _, chain := range chains {
		breaker := u.breakerFor(chain)
		state, _, _ := breaker.Stats()

		h := u.healthFor(chain)
		h.mu.Lock()
		out = append(out, ChainHealth{
			Chain:               chain,
			CircuitState:        state.String(),
			ConsecutiveFailures: h.consecutiveFailures,
			LastSuccess:         h.lastSuccess,
			LastFailure:         h.lastFailure,
			LastError:           h.lastError,
		})
		h.mu.Unlock()
	}
	return out
}

func (u *Upstream) breakerFor(chain string) *resilience.CircuitBreaker {
	u.mu.Lock()
	defer u.mu.Unlock()

	if breaker, ok := u.breakers[chain]; ok {
		return breaker
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "upstream-" + chain,
		FailureThreshold: u.cfg.FailureThreshold,
		SuccessThreshold: u.cfg.SuccessThreshold,
		ResetTimeout:     u.cfg.ResetTimeout,
		OnStateChange: func(from, to resilience.State) {
			u.logger.Warn("upstream circuit breaker state changed",
				"chain", chain,
				"from", from.String(),
				"to", to.String(),
			)
			if u.metrics != nil {
				u.metrics.SetCircuitBreakerState(context.Background(), chain, int64(to))
			}
			u.alerts.BreakerStateChanged(chain, from.String(), to.String())
		},
	})
	u.breakers[chain] = breaker
	return breaker
}

func (u *Upstream) healthFor(chain string) *chainHealth {
	u.mu.Lock()
	defer u.mu.Unlock()

	if h, ok := u.health[chain]; ok {
		return h
	}
	h := &chainHealth{}
	u.health[chain] = h
	return h
}

func (u *Upstream) recordHealth(chain string, err error) {
	h := u.healthFor(chain)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.lastFailure = time.Now()
		h.lastError = err.Error()
		h.consecutiveFailures++
		return
	}
	h.lastSuccess = time.Now()
	h.lastError = ""
	h.consecutiveFailures = 0
}
