package roomclient

import (
	"context"
	"errors"
	"time"

	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/pkg/roster"
)

// onWatchdog runs once per session when its time limit is reached. The
// leader archives right away; everyone else waits FollowerGrace and only
// steps in if the room is still open.
func (s *Session) onWatchdog(st *state) {
	start := st.watchdogArmed
	if start.IsZero() || start.Equal(st.watchdogFired) || !st.room.IsActive {
		return
	}
	st.watchdogFired = start
	st.watchdogArmed = time.Time{}

	delay := s.cfg.FollowerGrace
	if leader, ok := roster.ElectLeader(st.members); ok && leader == s.me.ID {
		delay = 0
	}

	s.logger.Info(module, "Session time limit reached", map[string]interface{}{
		"room_id":    s.roomID,
		"started_at": start,
		"delay":      delay.String(),
	})

	s.wg.Add(1)
	go s.expire(start, delay)
}

func (s *Session) expire(start time.Time, delay time.Duration) {
	defer s.wg.Done()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.ctx.Done():
			return
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	stillOpen := false
	err := s.do(ctx, func(st *state) error {
		stillOpen = st.room.IsActive && st.room.SessionStartAt != nil && st.room.SessionStartAt.Equal(start)
		return nil
	})
	if err != nil || !stillOpen {
		return
	}

	if _, err := s.archive(ctx, kindSystem, ""); err != nil {
		// a faster client finished first or replaced our lock
		if IsBenign(err) || errors.Is(err, apperr.ErrAuth) {
			s.logger.Info(module, "Session expiry handled elsewhere", map[string]interface{}{"room_id": s.roomID, "error": err.Error()})
			return
		}
		s.report(err)
	}
}
