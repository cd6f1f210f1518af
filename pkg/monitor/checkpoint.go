package monitor

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hashbridge/relay/pkg/swap"
)

// Checkpoints persists the last scanned position per chain and hashlock so a
// restarted watch resumes where the previous one stopped. Positions from
// different chains are incommensurable (block numbers, heights, disclosure
// indices), so the chain is always part of the key.
type Checkpoints interface {
	Checkpoint(ctx context.Context, chain string, lock swap.HashLock) (uint64, error)
	PutCheckpoint(ctx context.Context, chain string, lock swap.HashLock, position uint64) error
}

type checkpointID struct {
	chain string
	lock  swap.HashLock
}

type memoryCheckpoints struct {
	mu        sync.Mutex
	positions map[checkpointID]uint64
}

// NewMemoryCheckpoints keeps checkpoints in process. Suitable for tests and
// single-instance deployments that can afford a rescan on restart.
func NewMemoryCheckpoints() Checkpoints {
	return &memoryCheckpoints{positions: map[checkpointID]uint64{}}
}

func (m *memoryCheckpoints) Checkpoint(ctx context.Context, chain string, lock swap.HashLock) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[checkpointID{chain, lock}], nil
}

func (m *memoryCheckpoints) PutCheckpoint(ctx context.Context, chain string, lock swap.HashLock, position uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := checkpointID{chain, lock}
	if position > m.positions[id] {
		m.positions[id] = position
	}
	return nil
}

type redisCheckpoints struct {
	client *redis.Client
}

// NewRedisCheckpoints shares checkpoints between orchestrator instances
// through redis.
func NewRedisCheckpoints(redisURL string) (Checkpoints, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return redisCheckpoints{client: client}, nil
}

func (rc redisCheckpoints) Checkpoint(ctx context.Context, chain string, lock swap.HashLock) (uint64, error) {
	position, err := rc.client.Get(ctx, checkpointKey(chain, lock)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return position, err
}

func (rc redisCheckpoints) PutCheckpoint(ctx context.Context, chain string, lock swap.HashLock, position uint64) error {
	return rc.client.Set(ctx, checkpointKey(chain, lock), position, 0).Err()
}

func checkpointKey(chain string, lock swap.HashLock) string {
	return "checkpoint_" + chain + "_" + lock.Hex()
}
