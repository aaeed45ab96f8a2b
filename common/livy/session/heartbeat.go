package session

import (
	"context"
	"sync/atomic"
)

// heartbeat is the keep-alive task of a Session.
type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
	alive  atomic.Bool
}

func (h *heartbeat) running() bool {
	return h.alive.Load()
}

// startHeartbeat starts the keep-alive task if the Session has a heartbeat timeout and no task is running.
func (s *Session) startHeartbeat() {
	if s.opts.HeartbeatTimeout <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heartbeat != nil || s.status.IsTerminal() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}
	hb.alive.Store(true)
	s.heartbeat = hb

	go s.runHeartbeat(ctx, hb)
}

// stopHeartbeat cancels the keep-alive task and waits for it to exit.
// It must not be called from the keep-alive task itself.
func (s *Session) stopHeartbeat() {
	s.mu.Lock()
	hb := s.heartbeat
	s.mu.Unlock()

	if hb == nil {
		return
	}

	hb.cancel()
	<-hb.done
}

func (s *Session) runHeartbeat(ctx context.Context, hb *heartbeat) {
	defer func() {
		hb.alive.Store(false)
		close(hb.done)
	}()

	s.log.Debug("Starting heartbeat of session %d every %v.", s.Id(), s.opts.HeartbeatRefreshInterval)

	interval := s.opts.HeartbeatRefreshInterval
	for {
		if err := s.sleep(ctx, interval); err != nil {
			s.log.Debug("Heartbeat of session %d stopped.", s.Id())
			return
		}

		if err := s.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			s.metrics.ObserveHeartbeatFailure()
			s.log.Warn("Heartbeat of session %d failed: %v. Retrying in %v.", s.Id(), err, s.opts.HeartbeatRetryInterval)
			interval = s.opts.HeartbeatRetryInterval
			continue
		}

		if status := s.Status(); status.IsTerminal() {
			s.log.Debug("Session %d reached status \"%s\". Stopping heartbeat.", s.Id(), status)
			return
		}

		interval = s.opts.HeartbeatRefreshInterval
	}
}
