package server

import (
	"sync"

	"invertrack-go/internal/chart"
	"invertrack-go/internal/market"
)

// chartSession holds the per-login chart state: the intraday sampler and the
// axis window policy. The window range only widens while the selection is
// unchanged, so the previous window has to survive between requests.
type chartSession struct {
	mu      sync.Mutex
	sampler *market.Sampler
	policy  *chart.WindowPolicy
	window  chart.AxisWindow
	symbol  string
	view    chart.ViewMode
}

// selectChart switches the session to a symbol/view. A changed selection
// resets the remembered window and re-arms the frozen X range.
func (cs *chartSession) selectChart(symbol string, view chart.ViewMode) {
	if symbol == cs.symbol && view == cs.view {
		return
	}
	cs.symbol = symbol
	cs.view = view
	cs.window = chart.AxisWindow{}
	cs.policy.Activate()
}

// sessionRegistry maps session tokens to chart state. Entries are created
// lazily on first use and dropped on logout.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*chartSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*chartSession)}
}

func (r *sessionRegistry) get(token string) *chartSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sessions[token]
	if !ok {
		cs = &chartSession{
			sampler: market.NewSampler(),
			policy:  chart.NewWindowPolicy(),
		}
		r.sessions[token] = cs
	}
	return cs
}

func (r *sessionRegistry) drop(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}
