package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by New when no REDIS_URL is configured.
var ErrDisabled = errors.New("redis disabled: REDIS_URL is empty")

type Config struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
	KeyPrefix    string `split_words:"true" default:"eflow:"`
}

// Enabled reports whether a Redis URL is configured.
func (r *Config) Enabled() bool {
	return r.URL != ""
}

// New parses the URL, applies the timeouts and pings the server.
func (r *Config) New(ctx context.Context) (*redis.Client, error) {
	if !r.Enabled() {
		return nil, ErrDisabled
	}

	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, err
	}

	opts.ReadTimeout = time.Duration(r.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(r.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(r.DialTimeout) * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
