package auth

import (
	"context"
	"sync"
	"time"

	"securepatrol/core/store"
	"securepatrol/core/utils"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSpec = "@every 10m"

// SessionSweeper periodically removes expired sessions.
type SessionSweeper struct {
	store  store.SessionStore
	spec   string
	logger *utils.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSessionSweeper(st store.SessionStore, spec string, logger *utils.Logger) *SessionSweeper {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	return &SessionSweeper{store: st, spec: spec, logger: logger, now: utils.NowUTC}
}

func (s *SessionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *SessionSweeper) Sweep(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("session sweep failed: %v", err)
		}
		return 0
	}
	if n > 0 && s.logger != nil {
		s.logger.Printf("session sweep removed %d expired sessions", n)
	}
	return n
}
