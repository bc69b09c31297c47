package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/galerly/galerly/cache/types"
)

// Memory is a ristretto-backed in-process cache provider.
type Memory struct {
	client *ristretto.Cache
}

// Config holds ristretto sizing knobs.
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

// NewMemory creates an in-process cache provider.
func NewMemory(config Config) (*Memory, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
		Metrics:     config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Memory{
		client: client,
	}, nil
}

func (m *Memory) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	size := int64(1)
	if data, ok := value.([]byte); ok {
		size = int64(len(data))
	}

	set := m.client.SetWithTTL(key, value, size, expiration)
	if set {
		// Wait for the value to pass through ristretto's buffers
		m.client.Wait()
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, key string, dest interface{}) error {
	value, found := m.client.Get(key)
	if !found {
		return types.ErrCacheMiss
	}

	switch dest := dest.(type) {
	case *[]byte:
		if data, ok := value.([]byte); ok {
			*dest = data
		} else {
			jsonData, err := json.Marshal(value)
			if err != nil {
				return types.ErrCacheMiss
			}
			*dest = jsonData
		}
	default:
		var data []byte
		if byteData, ok := value.([]byte); ok {
			data = byteData
		} else {
			jsonData, err := json.Marshal(value)
			if err != nil {
				return types.ErrCacheMiss
			}
			data = jsonData
		}

		if err := json.Unmarshal(data, dest); err != nil {
			return types.ErrCacheMiss
		}
	}

	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.client.Del(key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, found := m.client.Get(key)
	return found, nil
}

func (m *Memory) Close() error {
	m.client.Close()
	return nil
}

func (m *Memory) Name() string {
	return "memory"
}
