package auth

import (
	"context"
	"sync"
	"time"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// Throttle はクライアントごとのログイン失敗回数を管理します。
type Throttle interface {
	// Locked はロック中であれば残り時間を返します。
	Locked(ctx context.Context, key string) (time.Duration, error)
	// Fail は失敗を記録し、ロックまでの残り回数を返します。
	Fail(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// MemoryThrottle はプロセス内で失敗回数を保持する Throttle です。
type MemoryThrottle struct {
	lock     sync.Mutex
	attempts map[string]*attemptState
	now      func() time.Time
}

// NewMemoryThrottle は MemoryThrottle を作成します。
func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

func (t *MemoryThrottle) Locked(ctx context.Context, key string) (time.Duration, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	state, ok := t.attempts[key]
	if !ok {
		return 0, nil
	}
	now := t.now()
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

func (t *MemoryThrottle) Fail(ctx context.Context, key string) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.now()
	state, ok := t.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		t.attempts[key] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (t *MemoryThrottle) Reset(ctx context.Context, key string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.attempts, key)
	return nil
}
