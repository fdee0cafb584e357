package common

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// RedisClient wraps a universal client so single and cluster modes share one type
type RedisClient struct {
	redis.UniversalClient
}

// WithClientName sets the client name reported to redis
func WithClientName(name string) func(*redis.UniversalOptions) {
	return func(opts *redis.UniversalOptions) {
		opts.ClientName = name
	}
}

func NewRedisClient(config types.RedisConfig, options ...func(*redis.UniversalOptions)) (*RedisClient, error) {
	if !config.IsConfigured() {
		return nil, errors.New("no redis addresses configured")
	}

	opts := &redis.UniversalOptions{
		Addrs:           config.Addrs,
		Username:        config.Username,
		Password:        config.Password,
		ClientName:      config.ClientName,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		ConnMaxIdleTime: config.ConnMaxIdleTime,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		MaxRetries:      config.MaxRetries,
	}
	if config.EnableTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify}
	}
	for _, opt := range options {
		opt(opts)
	}

	var client redis.UniversalClient
	switch config.Mode {
	case types.RedisModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	default:
		client = redis.NewClient(opts.Simple())
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", strings.Join(config.Addrs, ","), err)
	}

	return &RedisClient{UniversalClient: client}, nil
}
