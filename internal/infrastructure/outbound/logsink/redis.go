package logsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
)

// Redis keeps the newest maxLen entries of each project in a list at
// <prefix>logs:<project>, newest first.
type Redis struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewRedis creates a Redis sink on client.
func NewRedis(client *redis.Client, prefix string, maxLen int64) *Redis {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Redis{client: client, prefix: prefix, maxLen: maxLen}
}

// Key returns the list key of a project.
func (s *Redis) Key(projectID string) string {
	return s.prefix + "logs:" + projectID
}

func (s *Redis) Write(ctx context.Context, e dispatch.LogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	key := s.Key(e.ProjectID)
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, data)
		p.LTrim(ctx, key, 0, s.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis log append: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest entries of a project, oldest first.
func (s *Redis) Recent(ctx context.Context, projectID string, n int64) ([]dispatch.LogEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.Key(projectID), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis log range: %w", err)
	}
	out := make([]dispatch.LogEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e dispatch.LogEntry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
