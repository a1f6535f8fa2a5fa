package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// LiveStatus stores whether the monitored channel is live. The flag is shared
// by every instance and survives restarts; stream notifications and the
// startup poll write it, the uptime reconciler reads it each tick.
type LiveStatus struct {
	rdb     goredis.Cmdable
	channel string
}

func NewLiveStatus(rdb goredis.Cmdable, channel string) *LiveStatus {
	return &LiveStatus{rdb: rdb, channel: channel}
}

func (s *LiveStatus) IsOnline(ctx context.Context) (bool, error) {
	n, err := s.rdb.Exists(ctx, liveKey(s.channel)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read live status: %w", err)
	}
	return n == 1, nil
}

func (s *LiveStatus) SetOnline(ctx context.Context, online bool) error {
	var err error
	if online {
		err = s.rdb.Set(ctx, liveKey(s.channel), "1", 0).Err()
	} else {
		err = s.rdb.Del(ctx, liveKey(s.channel)).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to write live status: %w", err)
	}
	return nil
}

func liveKey(channel string) string {
	return "stream_live:" + channel
}
