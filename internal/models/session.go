package models

// PortfolioStatus tracks how the portfolio half of a session was populated.
type PortfolioStatus string

const (
	// PortfolioLoading means a fetch is in flight and no result has landed.
	PortfolioLoading PortfolioStatus = "loading"
	// PortfolioLoaded means the portfolio came from a fresh store read.
	PortfolioLoaded PortfolioStatus = "loaded"
	// PortfolioDegraded means the store read failed; the portfolio is either
	// a stale cache snapshot or nil. Sign-in is never blocked by this.
	PortfolioDegraded PortfolioStatus = "degraded"
)

// SessionState is the reconciled view of one signed-in user: identity from
// the auth provider plus the portfolio document, with the API key and tier
// lifted out for convenience. A nil *SessionState means signed out.
type SessionState struct {
	Identity  Identity           `json:"identity"`
	Portfolio *PortfolioDocument `json:"portfolio,omitempty"`
	Status    PortfolioStatus    `json:"status"`
	// Dirty is set when an optimistic section update failed to persist;
	// the in-memory portfolio is ahead of the store until a retry or
	// Refresh succeeds.
	Dirty   bool   `json:"dirty,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Tier    Tier   `json:"tier,omitempty"`
	Version uint64 `json:"-"`
}

// Clone returns a deep copy so consumers never share mutable state with
// the reconciler.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Portfolio = s.Portfolio.Clone()
	return &c
}

// LiftDerived refreshes the convenience fields from the embedded portfolio.
func (s *SessionState) LiftDerived() {
	if s.Portfolio == nil {
		s.APIKey = ""
		s.Tier = ""
		return
	}
	s.APIKey = s.Portfolio.APIKey
	s.Tier = s.Portfolio.Tier
}
