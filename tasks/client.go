package tasks

import (
	"fmt"

	"phonorule.dev/machine/redis"
)

type Client struct {
	Rewrites    RewriteTasks
	Jobs        JobTasks
	Derivations DerivationCache
}

// NewClient is a preferred way for working with task documents
func NewClient() (Client, error) {
	rewritesRedisClient, err := redis.NewClient(RewritesDB)
	if err != nil {
		return Client{}, err
	}
	jobsRedisClient, err := redis.NewClient(JobsDB)
	if err != nil {
		return Client{}, err
	}
	cacheRedisClient, err := redis.NewClient(CacheDB)
	if err != nil {
		return Client{}, err
	}
	return Client{
		Rewrites:    RewriteTasks{client: rewritesRedisClient},
		Jobs:        JobTasks{client: jobsRedisClient},
		Derivations: DerivationCache{client: cacheRedisClient, ttl: defaultCacheTTL},
	}, nil
}

func (client *Client) Close() {
	_ = client.Rewrites.client.Close()
	_ = client.Jobs.client.Close()
	_ = client.Derivations.client.Close()
}

func cachedPropertiesKey(redisKey string) string {
	return fmt.Sprintf("%s-cached-properties", redisKey)
}
