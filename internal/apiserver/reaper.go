package apiserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/store"
	"github.com/pharmesol/pharmabot/pkg/api"
)

// Reaper expires idle sessions. A session whose last activity is older than
// the TTL is deleted from the store and evicted from the live map, freeing the
// engine and its transcript.
type Reaper struct {
	store  store.Store
	server *Server
	ttl    time.Duration
	logger *zap.Logger
}

// NewReaper creates a reaper for the given server's sessions.
func NewReaper(s store.Store, srv *Server, ttl time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		store:  s,
		server: srv,
		ttl:    ttl,
		logger: logger,
	}
}

// Run sweeps for expired sessions until ctx is cancelled. Store mutations are
// also observed via Watch so lifecycle activity shows up in the logs as it
// happens, not only on sweep boundaries.
func (r *Reaper) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	events, cancel := r.store.Watch(store.SessionKeyPrefix)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("session reaper started",
		zap.Duration("ttl", r.ttl),
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session reaper stopping")
			return

		case evt, ok := <-events:
			if !ok {
				return
			}
			r.logger.Debug("session event",
				zap.String("type", string(evt.Type)),
				zap.String("key", evt.Key),
			)

		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep deletes every session idle past the TTL.
func (r *Reaper) sweep() {
	items, err := r.store.List(store.SessionKeyPrefix, func() interface{} { return &api.Session{} })
	if err != nil {
		r.logger.Error("session sweep failed", zap.Error(err))
		return
	}

	deadline := time.Now().Add(-r.ttl)
	for _, item := range items {
		rec := item.(*api.Session)
		if rec.UpdatedAt.After(deadline) {
			continue
		}

		if err := r.store.Delete(store.SessionKey(rec.ID)); err != nil && err != store.ErrNotFound {
			r.logger.Warn("failed to expire session",
				zap.String("session", rec.ID),
				zap.Error(err),
			)
			continue
		}
		r.server.dropLive(rec.ID)

		r.logger.Info("session expired",
			zap.String("session", rec.ID),
			zap.Duration("idle", time.Since(rec.UpdatedAt).Round(time.Second)),
		)
	}
}
