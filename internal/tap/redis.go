package tap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 200 * time.Millisecond

type RedisOptions struct {
	URL     string
	Channel string
	Timeout time.Duration
}

// Redis publishes every frame to a pub/sub channel, plus a per-node channel
// once the node id is known.
type Redis struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

func NewRedis(opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("tap: redis url is required")
	}
	if strings.TrimSpace(opts.Channel) == "" {
		return nil, errors.New("tap: channel is required")
	}
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Redis{
		client:  redis.NewClient(opt),
		channel: opts.Channel,
		timeout: opts.Timeout,
	}, nil
}

func (r *Redis) Publish(ctx context.Context, f Frame) error {
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Publish(pubCtx, r.channel, b).Err(); err != nil {
		return err
	}
	if f.NodeID != "" {
		return r.client.Publish(pubCtx, r.NodeChannel(f.NodeID), b).Err()
	}
	return nil
}

func (r *Redis) NodeChannel(nodeID string) string {
	return r.channel + ":node:" + nodeID
}

func (r *Redis) Close() error {
	return r.client.Close()
}
