package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
)

type DB int
type ReleaseLock func() error

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("redis: key not found")

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
}

var ctx = context.Background()

type Config struct {
	LockExpirationSeconds   int     `envconfig:"MACHINE_REDIS_LOCK_EXPIRATION" default:"3"`
	Host                    string  `envconfig:"MACHINE_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"MACHINE_REDIS_PORT" required:"true"`
	HASentinelPort          string  `envconfig:"MACHINE_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"MACHINE_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"MACHINE_REDIS_AUTH_PASSWORD" default:""`
	AuthRequired            bool    `envconfig:"MACHINE_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"MACHINE_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"MACHINE_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

func NewClient(db DB) (Client, error) {
	cfg, err := readEnvironment()
	if err != nil {
		return Client{}, err
	}
	var client redis.UniversalClient
	if cfg.HAMode {
		client = CreateFailoverClient(cfg, db)
	} else {
		client = CreateClient(cfg, db)
	}
	return Wrap(client, time.Duration(cfg.LockExpirationSeconds)*time.Second), nil
}

// Wrap builds a Client around an existing connection.
func Wrap(client redis.UniversalClient, lockExpiration time.Duration) Client {
	return Client{client: client, lockExpiration: lockExpiration}
}

func CreateFailoverClient(cfg *Config, db DB) *redis.ClusterClient {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{addr},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewFailoverClusterClient(&options)
}

func CreateClient(cfg *Config, db DB) *redis.Client {
	options := redis.Options{
		Addr:       fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewClient(&options)
}

// Get returns the raw value stored at key.
func (client *Client) Get(key string) ([]byte, error) {
	b, err := client.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return b, err
}

// Set stores value at key. A zero ttl keeps the key forever.
func (client *Client) Set(key string, value []byte, ttl time.Duration) error {
	return client.client.Set(ctx, key, value, ttl).Err()
}

// GetDocument decodes the JSON document at key into doc.
func (client *Client) GetDocument(key string, doc interface{}) error {
	b, err := client.Get(key)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(b, doc); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// UpdateDocument loads the document at key into doc under a lock, calls update and writes
// back only the fields update changed. Fields doc does not declare are kept as stored.
func (client *Client) UpdateDocument(key string, doc interface{}, update func()) (err error) {
	releaseLock, err := client.Lock(key)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()
	raw, err := client.Get(key)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	before, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	update()
	after, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	merged, err := MergeDocument(raw, before, after)
	if err != nil {
		return fmt.Errorf("merge %s: %w", key, err)
	}
	return client.Set(key, merged, 0)
}

// MergeDocument applies the difference between before and after to raw.
func MergeDocument(raw, before, after []byte) ([]byte, error) {
	patch, err := jsonpatch.CreateMergePatch(before, after)
	if err != nil {
		return nil, err
	}
	return jsonpatch.MergePatch(raw, patch)
}

// SaveDocument replaces the value at key with doc encoded as JSON.
func (client *Client) SaveDocument(key string, doc interface{}, ttl time.Duration) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return client.Set(key, b, ttl)
}

func (client *Client) Lock(key string) (ReleaseLock, error) {
	locker := redislock.New(client.client)
	retry := redislock.LimitRetry(redislock.LinearBackoff(time.Second), 20)
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:%s", key), client.lockExpiration, &redislock.Options{RetryStrategy: retry})
	if err != nil {
		return nil, err
	}
	return func() error {
		return lock.Release(ctx)
	}, nil
}

func (client *Client) Close() error {
	return client.client.Close()
}

func readEnvironment() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
