package cache

import (
	"fmt"
	"log"

	"github.com/galerly/galerly/cache/memory"
	"github.com/galerly/galerly/cache/redis"
	"github.com/galerly/galerly/cache/types"
	"github.com/galerly/galerly/config"
)

// Factory creates the configured cache provider.
type Factory struct {
	provider types.Cache
}

// NewFactory initializes the cache provider named in the configuration.
func NewFactory(cfg *config.Config) (*Factory, error) {
	var provider types.Cache
	var err error

	switch cfg.CacheType {
	case "redis":
		provider, err = redis.NewRedis(cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache provider: %w", err)
		}
	case "memory", "":
		maxCost := cfg.CacheMaxDataSizeMB << 20
		if maxCost <= 0 {
			maxCost = 10 << 20
		}
		provider, err = memory.NewMemory(memory.Config{
			NumCounters: 1e6,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory cache provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.CacheType)
	}

	log.Printf("Cache provider initialized: %s", provider.Name())

	return &Factory{provider: provider}, nil
}

// GetProvider returns the active cache provider.
func (f *Factory) GetProvider() types.Cache {
	return f.provider
}

// Close shuts down the provider.
func (f *Factory) Close() error {
	if f.provider == nil {
		return nil
	}
	return f.provider.Close()
}
