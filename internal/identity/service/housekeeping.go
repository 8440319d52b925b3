package service

import (
	"context"
	"time"

	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/slogx"
)

// DefaultSweepInterval is how often expired rows are cleared when config does
// not say otherwise.
const DefaultSweepInterval = time.Hour

// Housekeeping periodically deletes expired refresh records, verification
// tokens and OAuth states. Purely hygienic; every read path already checks
// expiry itself.
type Housekeeping struct {
	Store    store.Store
	Interval time.Duration
}

// Run sweeps on a ticker until the context is cancelled.
func (h *Housekeeping) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *Housekeeping) sweep(ctx context.Context) {
	l := slogx.FromContext(ctx)

	if err := h.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx); err != nil {
		l.Error("sweep refresh tokens", "error", err)
	}
	if err := h.Store.VerificationTokens().DeleteExpiredVerificationTokens(ctx); err != nil {
		l.Error("sweep verification tokens", "error", err)
	}
	if err := h.Store.OAuthStates().DeleteExpiredOAuthStates(ctx); err != nil {
		l.Error("sweep oauth states", "error", err)
	}
}
