package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxUpdateRetries bounds how often UpdateProgress re-runs a mutation after losing
// an optimistic transaction to a concurrent writer.
const DefaultMaxUpdateRetries = 10

var (
	// ErrAlreadyExists is returned when a create-if-absent write finds the document present.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrConflict is returned when UpdateProgress keeps losing to concurrent writers.
	ErrConflict = errors.New("too many concurrent updates")

	// ErrInvalid marks caller input that can never succeed, such as an out-of-range grade.
	ErrInvalid = errors.New("invalid input")
)

// Client provides instance-scoped Redis operations for cohort documents.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb              *redis.Client
	instanceName     string
	maxUpdateRetries int
}

// NewClient creates a new progress store client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: cohort instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:              redis.NewClient(redisOpts),
		instanceName:     instanceName,
		maxUpdateRetries: DefaultMaxUpdateRetries,
	}, nil
}

// SetMaxUpdateRetries overrides how many optimistic attempts UpdateProgress makes.
// Values below 1 are ignored.
func (c *Client) SetMaxUpdateRetries(n int) {
	if n >= 1 {
		c.maxUpdateRetries = n
	}
}

// InstanceName returns the namespace this client writes under.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CreateProgress stores a new progress aggregate if none exists for (user, batch).
// Returns ErrAlreadyExists if the aggregate is already present, including when another
// writer creates it between the existence check and the write.
// The stored version starts at 1; p.Version is updated accordingly.
func (c *Client) CreateProgress(ctx context.Context, p *UserBatchProgress) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid progress: %w", err)
	}

	key := ProgressKey(c.instanceName, p.UserID, p.BatchID)

	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check progress existence: %w", err)
		}
		if exists > 0 {
			return ErrAlreadyExists
		}

		p.Version = 1
		hash, err := ProgressToHash(p)
		if err != nil {
			return fmt.Errorf("failed to serialize progress: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			pipe.SAdd(ctx, BatchProgressIndexKey(c.instanceName, p.BatchID), p.UserID)
			pipe.SAdd(ctx, UserBatchesKey(c.instanceName, p.UserID), p.BatchID)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrAlreadyExists
	}
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("failed to write progress to Redis: %w", err)
	}
	return err
}

// GetProgress retrieves the progress aggregate for (user, batch).
// Returns (nil, redis.Nil) if the aggregate doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetProgress(ctx context.Context, userID, batchID string) (*UserBatchProgress, error) {
	key := ProgressKey(c.instanceName, userID, batchID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress from Redis: %w", err)
	}

	// HGetAll returns empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	p, err := HashToProgress(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize progress: %w", err)
	}

	return p, nil
}

// UpdateProgress applies mutate to the current aggregate and writes the result atomically.
//
// The read, the mutation and the write run inside a WATCH/MULTI/EXEC transaction on the
// aggregate key. If another writer commits in between, the transaction aborts and the whole
// sequence is re-run against the fresh document, up to the configured retry limit.
// mutate may therefore be called more than once and must derive everything from the
// aggregate it is handed.
//
// Errors returned by mutate are passed back unchanged and nothing is written.
// Returns (nil, redis.Nil) if the aggregate doesn't exist, and ErrConflict if every
// attempt lost to a concurrent writer.
func (c *Client) UpdateProgress(ctx context.Context, userID, batchID string, mutate func(*UserBatchProgress) error) (*UserBatchProgress, error) {
	key := ProgressKey(c.instanceName, userID, batchID)

	for attempt := 1; attempt <= c.maxUpdateRetries; attempt++ {
		var updated *UserBatchProgress

		err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			hashData, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("failed to read progress from Redis: %w", err)
			}
			if len(hashData) == 0 {
				return redis.Nil
			}

			p, err := HashToProgress(hashData)
			if err != nil {
				return fmt.Errorf("failed to deserialize progress: %w", err)
			}
			readVersion := p.Version

			if err := mutate(p); err != nil {
				return err
			}

			if err := p.Validate(); err != nil {
				return fmt.Errorf("invalid progress: %w", err)
			}

			p.Version = readVersion + 1
			hash, err := ProgressToHash(p)
			if err != nil {
				return fmt.Errorf("failed to serialize progress: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, hash)
				return nil
			})
			if err != nil {
				return err
			}

			updated = p
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("%w: progress %s/%s after %d attempts", ErrConflict, userID, batchID, c.maxUpdateRetries)
}

// ListBatchProgress returns every progress aggregate in a batch, ordered by user ID.
// Returns an empty slice if nobody is enrolled (not an error).
func (c *Client) ListBatchProgress(ctx context.Context, batchID string) ([]*UserBatchProgress, error) {
	userIDs, err := c.rdb.SMembers(ctx, BatchProgressIndexKey(c.instanceName, batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch progress index: %w", err)
	}
	sort.Strings(userIDs)

	keys := make([]string, len(userIDs))
	for i, userID := range userIDs {
		keys[i] = ProgressKey(c.instanceName, userID, batchID)
	}
	return c.getProgressKeys(ctx, keys)
}

// ListUserProgress returns every progress aggregate of a user, ordered by batch ID.
// Returns an empty slice if the user is not enrolled anywhere (not an error).
func (c *Client) ListUserProgress(ctx context.Context, userID string) ([]*UserBatchProgress, error) {
	batchIDs, err := c.rdb.SMembers(ctx, UserBatchesKey(c.instanceName, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user batches index: %w", err)
	}
	sort.Strings(batchIDs)

	keys := make([]string, len(batchIDs))
	for i, batchID := range batchIDs {
		keys[i] = ProgressKey(c.instanceName, userID, batchID)
	}
	return c.getProgressKeys(ctx, keys)
}

// getProgressKeys fetches several aggregates in one round trip, skipping missing keys.
func (c *Client) getProgressKeys(ctx context.Context, keys []string) ([]*UserBatchProgress, error) {
	results := make([]*UserBatchProgress, 0, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read progress from Redis: %w", err)
	}

	for i, cmd := range cmds {
		hashData := cmd.Val()
		if len(hashData) == 0 {
			continue
		}
		p, err := HashToProgress(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize progress %s: %w", keys[i], err)
		}
		results = append(results, p)
	}

	return results, nil
}

// IncrementXP adds delta experience points to a user and returns the new total.
func (c *Client) IncrementXP(ctx context.Context, userID string, delta int) (int64, error) {
	total, err := c.rdb.IncrBy(ctx, UserXPKey(c.instanceName, userID), int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment XP: %w", err)
	}
	return total, nil
}

// GetXP returns a user's experience points. Users without any XP have zero.
func (c *Client) GetXP(ctx context.Context, userID string) (int64, error) {
	total, err := c.rdb.Get(ctx, UserXPKey(c.instanceName, userID)).Int64()
	if err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read XP: %w", err)
	}
	return total, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetProgress, GetTask, GetBatch or GetSubmission returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
