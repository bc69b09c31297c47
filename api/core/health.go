package core

import (
	"context"

	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/database"
	"github.com/galerly/galerly/storage"
)

func checkDatabaseHealth(provider database.Provider) string {
	if provider == nil {
		return "not initialized"
	}
	if err := provider.Ping(); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}

func checkCacheHealth(cacheFactory *cache.Factory) string {
	if cacheFactory == nil {
		return "not initialized"
	}
	if cacheFactory.GetProvider() != nil {
		return "ok"
	}
	return "not initialized"
}

func checkStorageHealth(storageFactory *storage.Factory) string {
	if storageFactory == nil {
		return "not initialized"
	}

	provider := storageFactory.GetDefault()
	if provider == nil {
		return "error: no default storage provider"
	}

	if err := provider.Health(context.Background()); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
