package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GroupLocker serializes work on a single group's ledger. Lock blocks until
// the group's scope is held and returns the function that releases it.
// Distinct groups never block each other.
type GroupLocker interface {
	Lock(ctx context.Context, groupID uuid.UUID) (unlock func(), err error)
}

// LocalLocker keeps one mutex per group inside the process. Mutexes are
// dropped once nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*groupLock
}

type groupLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*groupLock)}
}

func (l *LocalLocker) Lock(_ context.Context, groupID uuid.UUID) (func(), error) {
	l.mu.Lock()
	gl, ok := l.locks[groupID]
	if !ok {
		gl = &groupLock{}
		l.locks[groupID] = gl
	}
	gl.refs++
	l.mu.Unlock()

	gl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			gl.mu.Unlock()

			l.mu.Lock()
			gl.refs--
			if gl.refs == 0 {
				delete(l.locks, groupID)
			}
			l.mu.Unlock()
		})
	}, nil
}

const (
	defaultLockExpiry     = 10 * time.Second
	defaultLockTries      = 64
	defaultLockRetryDelay = 50 * time.Millisecond
)

// RedisLocker holds the group scope in Redis through redsync so that several
// service instances sharing one database serialize on the same group.
type RedisLocker struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

func NewRedisLocker(client redis.UniversalClient, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = defaultLockExpiry
	}
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(client)),
		expiry:     expiry,
		tries:      defaultLockTries,
		retryDelay: defaultLockRetryDelay,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, groupID uuid.UUID) (func(), error) {
	key := "ledger:lock:group:" + groupID.String()
	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.retryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquiring group lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// released even when the request context is already done
			if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
				slog.Error("failed to release group lock", "lock_key", key, "unlock_ok", ok, "error", err)
			}
		})
	}, nil
}
