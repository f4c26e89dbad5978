package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mindagrowAPI/storage/redis"
)

const jobLockPrefix = "job"

// Release only deletes the key while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLock is a Redis mutex that keeps a maintenance job single-flight across instances.
type JobLock struct {
	client goredis.UniversalClient
	prefix string
}

func NewJobLock(client goredis.UniversalClient, prefix string) *JobLock {
	return &JobLock{client: client, prefix: prefix}
}

// TryLock claims the job for ttl. token identifies the holder on release.
func (l *JobLock) TryLock(ctx context.Context, job, token string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, redis.Key(l.prefix, jobLockPrefix, job), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for %s: %w", job, err)
	}
	return ok, nil
}

func (l *JobLock) Unlock(ctx context.Context, job, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{redis.Key(l.prefix, jobLockPrefix, job)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", job, err)
	}
	return nil
}
