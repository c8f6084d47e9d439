package bridge

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// perIPState tracks the abuse-prevention bookkeeping for one remote IP.
type perIPState struct {
	// limiter enforces the per-IP connection rate. A token bucket with
	// burst==refill==MaxConnPerIPSecond reproduces a "reset to 1 if the
	// previous accept was >1s ago, else increment, refuse past N" rule
	// closely enough for an abuse guard, without hand-rolled
	// second-bucket arithmetic.
	limiter *rate.Limiter

	mu           sync.Mutex
	authFailures int
	lockoutUntil time.Time
	lastActivity time.Time
}

// ipStates is the IP-State Table.
type ipStates struct {
	mu     sync.Mutex
	states map[string]*perIPState

	maxConnPerSecond int
	maxAuthAttempts  int
	lockoutDuration  time.Duration
	now              func() time.Time
}

func newIPStates() *ipStates {
	return &ipStates{
		states:           make(map[string]*perIPState),
		maxConnPerSecond: MaxConnPerIPSecond,
		maxAuthAttempts:  MaxAuthAttempts,
		lockoutDuration:  AuthLockout,
		now:              time.Now,
	}
}

func (s *ipStates) getOrCreate(ip string) *perIPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[ip]
	if !ok {
		st = &perIPState{
			limiter: rate.NewLimiter(rate.Limit(s.maxConnPerSecond), s.maxConnPerSecond),
		}
		s.states[ip] = st
	}
	return st
}

// allowConnect enforces the per-IP connection rate cap. It always
// touches lastActivity so the sweep's idle clock resets on any activity.
func (s *ipStates) allowConnect(ip string) bool {
	st := s.getOrCreate(ip)
	st.mu.Lock()
	st.lastActivity = s.now()
	st.mu.Unlock()
	return st.limiter.Allow()
}

// isLockedOut reports whether ip is currently under an auth lockout.
func (s *ipStates) isLockedOut(ip string) bool {
	st := s.getOrCreate(ip)
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.lockoutUntil.IsZero() && s.now().Before(st.lockoutUntil)
}

// recordAuthFailure increments ip's failure count, arming a lockout once
// MaxAuthAttempts is reached. Returns true if this failure just triggered
// the lockout.
func (s *ipStates) recordAuthFailure(ip string) (lockedOut bool) {
	st := s.getOrCreate(ip)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastActivity = s.now()
	st.authFailures++
	if st.authFailures >= s.maxAuthAttempts {
		st.lockoutUntil = s.now().Add(s.lockoutDuration)
		return true
	}
	return false
}

// recordAuthSuccess resets ip's failure count.
func (s *ipStates) recordAuthSuccess(ip string) {
	st := s.getOrCreate(ip)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.authFailures = 0
	st.lastActivity = s.now()
}

// sweep removes entries whose lockout has elapsed and whose last
// activity is older than the idle grace period.
func (s *ipStates) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, st := range s.states {
		st.mu.Lock()
		lockoutElapsed := st.lockoutUntil.IsZero() || now.After(st.lockoutUntil)
		idle := now.Sub(st.lastActivity) > ipStateIdleGrace
		st.mu.Unlock()
		if lockoutElapsed && idle {
			delete(s.states, ip)
		}
	}
}

// runSweeper blocks, sweeping every IPStateSweepInterval, until ctxDone
// is closed.
func (s *ipStates) runSweeper(ctxDone <-chan struct{}) {
	ticker := time.NewTicker(IPStateSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctxDone:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
