package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rulstack/rulstack/pkg/types"
	"github.com/rulstack/rulstack/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against each successful prediction and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	wg       sync.WaitGroup
	stopped  bool // set by Wait; no deliveries start afterwards
}

// New creates an Engine from the alert configuration. Every condition is
// parsed up front; an Engine with no rules is valid and Evaluate is a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	rules := make([]rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		rules = append(rules, rule{AlertRule: r, cond: c})
	}
	return &Engine{
		rules:    rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}, nil
}

// Evaluate tests all configured rules against one reading and its prediction.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(r types.Reading, rul float64) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, rl := range e.rules {
		fires, value := rl.cond.eval(r, rul)

		e.mu.Lock()
		var notify *Alert
		if fires {
			notify = e.fire(rl, value, now)
		} else {
			notify = e.resolve(rl, now)
		}
		if notify != nil && e.stopped {
			slog.Debug("alert delivery skipped after shutdown", "rule", rl.Name)
			notify = nil
		}
		if notify != nil {
			e.wg.Add(1)
		}
		e.mu.Unlock()

		if notify != nil {
			go func(a *Alert) {
				defer e.wg.Done()
				e.deliver(a)
			}(notify)
		}
	}
}

// fire records a firing alert unless the rule is cooling down. Caller holds mu.
func (e *Engine) fire(rl rule, value float64, now time.Time) *Alert {
	cooldown := rl.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if now.Sub(e.lastFire[rl.Name]) <= cooldown {
		return nil
	}
	sev := rl.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:        fmt.Sprintf("%s:%d", rl.Name, now.UnixNano()),
		RuleName:  rl.Name,
		Condition: rl.cond.String(),
		Severity:  sev,
		Value:     value,
		Message:   fmt.Sprintf("[%s] %s fired: %s (value %.2f)", sev, rl.Name, rl.cond, value),
		FiredAt:   now,
		State:     "firing",
	}
	e.active[rl.Name] = a
	e.lastFire[rl.Name] = now

	slog.Warn("alert fired",
		"rule", rl.Name,
		"condition", rl.cond.String(),
		"value", value,
		"severity", sev,
	)
	cp := *a
	return &cp
}

// resolve closes a firing alert for rl, if any. Caller holds mu.
func (e *Engine) resolve(rl rule, now time.Time) *Alert {
	a, ok := e.active[rl.Name]
	if !ok {
		return nil
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, rl.Name)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}

	slog.Info("alert resolved", "rule", rl.Name)
	cp := *a
	return &cp
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until all in-flight webhook deliveries have finished. Alerts
// evaluated after Wait is called are still recorded but not delivered.
func (e *Engine) Wait() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.wg.Wait()
}
