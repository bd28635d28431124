package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another runner owns the campaign
var ErrLockHeld = errors.New("campaign lock is held by another runner")

// CampaignLocker ensures a single send runner per campaign
type CampaignLocker interface {
	// Acquire returns a release func, or ErrLockHeld.
	Acquire(ctx context.Context, campaignID uint, ttl time.Duration) (func(), error)
}

// releaseScript deletes the key only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only when it still holds our token
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisCampaignLocker implements CampaignLocker with SET NX PX
type RedisCampaignLocker struct {
	rc     *redis.Client
	prefix string
}

func NewRedisCampaignLocker(rc *redis.Client, prefix string) *RedisCampaignLocker {
	return &RedisCampaignLocker{rc: rc, prefix: prefix}
}

func (l *RedisCampaignLocker) key(campaignID uint) string {
	return l.prefix + "campaign-lock:" + strconv.FormatUint(uint64(campaignID), 10)
}

func (l *RedisCampaignLocker) Acquire(ctx context.Context, campaignID uint, ttl time.Duration) (func(), error) {
	key := l.key(campaignID)
	token := uuid.NewString()

	ok, err := l.rc.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire campaign lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	stop := make(chan struct{})
	go l.keepAlive(key, token, ttl, stop)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			// the caller's context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rc, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("failed to release campaign lock %s: %v", key, err)
			}
		})
	}
	return release, nil
}

// keepAlive renews the lock every ttl/3 so long campaigns keep ownership
func (l *RedisCampaignLocker) keepAlive(key, token string, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := renewScript.Run(ctx, l.rc, []string{key}, token, ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				log.Printf("failed to renew campaign lock %s: %v", key, err)
				continue
			}
			if n == 0 {
				log.Printf("campaign lock %s lost", key)
				return
			}
		}
	}
}

// LocalCampaignLocker is an in-process CampaignLocker for single instance deployments
type LocalCampaignLocker struct {
	mu   sync.Mutex
	held map[uint]time.Time
}

func NewLocalCampaignLocker() *LocalCampaignLocker {
	return &LocalCampaignLocker{held: make(map[uint]time.Time)}
}

func (l *LocalCampaignLocker) Acquire(ctx context.Context, campaignID uint, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expires, ok := l.held[campaignID]; ok && now.Before(expires) {
		return nil, ErrLockHeld
	}
	l.held[campaignID] = now.Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, campaignID)
			l.mu.Unlock()
		})
	}, nil
}
