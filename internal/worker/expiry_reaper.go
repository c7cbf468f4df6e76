// Package worker holds background jobs that run next to the REST server.
package worker

import (
	"context"
	"errors"
	"time"

	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/repository/specification"
	"paintroom-be/internal/repository/unitofwork"
	"paintroom-be/internal/service"
	"paintroom-be/pkg/canvas"
)

// ExpiryReaper finishes sessions that every client abandoned. Clients
// normally archive an expired session themselves; the reaper only acts once
// the grace period after the time limit has passed too.
type ExpiryReaper struct {
	uowFactory unitofwork.RepositoryFactory
	strokes    service.IStrokeService
	archives   service.IArchiveService
	sessions   service.ISessionService
	rules      service.SessionRules
	interval   time.Duration
	grace      time.Duration
	logger     logger.ILogger
}

func NewExpiryReaper(
	uowFactory unitofwork.RepositoryFactory,
	strokes service.IStrokeService,
	archives service.IArchiveService,
	sessions service.ISessionService,
	rules service.SessionRules,
	interval, grace time.Duration,
	log logger.ILogger,
) *ExpiryReaper {
	return &ExpiryReaper{
		uowFactory: uowFactory,
		strokes:    strokes,
		archives:   archives,
		sessions:   sessions,
		rules:      rules,
		interval:   interval,
		grace:      grace,
		logger:     log,
	}
}

func (r *ExpiryReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep finishes every overdue session once and returns how many it closed.
func (r *ExpiryReaper) Sweep(ctx context.Context) int {
	now := time.Now()
	if r.rules.Now != nil {
		now = r.rules.Now()
	}
	cutoff := now.Add(-r.rules.TimeLimit - r.grace)

	uow := r.uowFactory.NewUnitOfWork(ctx)
	rooms, err := uow.RoomRepository().FindAll(ctx, specification.StartedBefore{Cutoff: cutoff})
	if err != nil {
		r.logger.Error("ExpiryReaper", "Failed to list overdue rooms", map[string]interface{}{"error": err})
		return 0
	}

	finished := 0
	for _, room := range rooms {
		if err := r.finish(ctx, room.Id); err != nil {
			// a client may have finished it between the query and now
			if errors.Is(err, apperr.ErrSessionNotActive) {
				continue
			}
			r.logger.Error("ExpiryReaper", "Failed to finish overdue session", map[string]interface{}{"room_id": room.Id, "error": err})
			continue
		}
		finished++
	}

	if finished > 0 {
		r.logger.Info("ExpiryReaper", "Overdue sessions finished", map[string]interface{}{"count": finished})
	}
	return finished
}

func (r *ExpiryReaper) finish(ctx context.Context, roomId int64) error {
	strokes, err := r.strokes.Snapshot(ctx, roomId)
	if err != nil {
		return err
	}

	png, err := canvas.EncodePNG(canvas.Render(strokes, canvas.RenderOptions{Scale: 1}))
	if err != nil {
		return err
	}

	req, err := r.archives.StoreServerArtifact(ctx, roomId, png)
	if err != nil {
		return err
	}

	_, err = r.sessions.Finish(ctx, roomId, req)
	return err
}
