package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobLogTTL      = 7 * 24 * time.Hour
	maxLogReadSize = 1 << 20 // single read cap, callers page with offset
)

// Log is a per-job append-only byte log. Appends happen in the worker,
// reads happen in the API process, so the implementation must be shared
// storage, not process memory.
type Log interface {
	Append(ctx context.Context, jobID, line string) error
	// Read returns up to limit bytes starting at offset and the next
	// offset to poll from. Reading at or past the end returns empty
	// content with the same offset back.
	Read(ctx context.Context, jobID string, offset, limit int64) (string, int64, error)
	Length(ctx context.Context, jobID string) (int64, error)
}

// RedisLog stores each job's log as one redis string. APPEND is atomic and
// GETRANGE is offset-based, which is exactly the contract the log endpoint
// exposes.
type RedisLog struct {
	rdb *redis.Client
}

func NewRedisLog(rdb *redis.Client) *RedisLog {
	return &RedisLog{rdb: rdb}
}

func logKey(jobID string) string {
	return "joblog:" + jobID
}

func (l *RedisLog) Append(ctx context.Context, jobID, line string) error {
	key := logKey(jobID)
	entry := time.Now().UTC().Format(time.RFC3339) + " " + line + "\n"

	pipe := l.rdb.TxPipeline()
	pipe.Append(ctx, key, entry)
	pipe.Expire(ctx, key, jobLogTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *RedisLog) Read(ctx context.Context, jobID string, offset, limit int64) (string, int64, error) {
	if offset < 0 {
		return "", 0, fmt.Errorf("offset must be non-negative")
	}
	if limit <= 0 || limit > maxLogReadSize {
		limit = maxLogReadSize
	}

	length, err := l.Length(ctx, jobID)
	if err != nil {
		return "", 0, err
	}
	if offset >= length {
		return "", offset, nil
	}

	content, err := l.rdb.GetRange(ctx, logKey(jobID), offset, offset+limit-1).Result()
	if err != nil {
		return "", 0, err
	}
	return content, offset + int64(len(content)), nil
}

func (l *RedisLog) Length(ctx context.Context, jobID string) (int64, error) {
	return l.rdb.StrLen(ctx, logKey(jobID)).Result()
}

// MemoryLog is the in-process Log used by tests.
type MemoryLog struct {
	mu   sync.Mutex
	logs map[string][]byte
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[string][]byte)}
}

func (l *MemoryLog) Append(_ context.Context, jobID, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := time.Now().UTC().Format(time.RFC3339) + " " + line + "\n"
	l.logs[jobID] = append(l.logs[jobID], entry...)
	return nil
}

func (l *MemoryLog) Read(_ context.Context, jobID string, offset, limit int64) (string, int64, error) {
	if offset < 0 {
		return "", 0, fmt.Errorf("offset must be non-negative")
	}
	if limit <= 0 || limit > maxLogReadSize {
		limit = maxLogReadSize
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data := l.logs[jobID]
	if offset >= int64(len(data)) {
		return "", offset, nil
	}
	end := offset + limit
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	content := string(data[offset:end])
	return content, offset + int64(len(content)), nil
}

func (l *MemoryLog) Length(_ context.Context, jobID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.logs[jobID])), nil
}
