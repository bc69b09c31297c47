package storage

import (
	"fmt"
	"log"

	"github.com/galerly/galerly/config"
)

// Factory creates and holds the configured storage providers.
type Factory struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewFactory initializes every provider the configuration enables and pins
// the default one.
func NewFactory(cfg *config.Config) (*Factory, error) {
	factory := &Factory{
		providers: make(map[string]Provider),
	}

	log.Println("Initializing storage providers...")

	if cfg.StorageLocalPath != "" {
		localProvider, err := NewLocalStorage(cfg.StorageLocalPath)
		if err != nil {
			log.Printf("Failed to initialize local storage: %v", err)
		} else {
			factory.providers["local"] = localProvider
			log.Println("Successfully initialized 'local' storage provider")
		}
	}

	if cfg.MinioEndpoint != "" {
		minioProvider, err := NewMinioStorage(cfg)
		if err != nil {
			log.Printf("Failed to initialize minio storage: %v", err)
		} else {
			factory.providers["minio"] = minioProvider
			log.Println("Successfully initialized 'minio' storage provider")
		}
	}

	if cfg.S3Bucket != "" {
		s3Provider, err := NewS3Storage(cfg)
		if err != nil {
			log.Printf("Failed to initialize s3 storage: %v", err)
		} else {
			factory.providers["s3"] = s3Provider
			log.Println("Successfully initialized 's3' storage provider")
		}
	}

	if cfg.WebDAVURL != "" {
		webdavProvider, err := NewWebDAVStorage(cfg)
		if err != nil {
			log.Printf("Failed to initialize webdav storage: %v", err)
		} else {
			factory.providers["webdav"] = webdavProvider
			log.Println("Successfully initialized 'webdav' storage provider")
		}
	}

	if len(factory.providers) == 0 {
		return nil, fmt.Errorf("no storage providers were successfully initialized")
	}

	factory.defaultProvider = cfg.StorageType
	if _, ok := factory.providers[factory.defaultProvider]; !ok {
		return nil, fmt.Errorf("default storage type '%s' is not available", factory.defaultProvider)
	}
	log.Printf("Default storage provider set to: '%s'", factory.defaultProvider)

	return factory, nil
}

// Get returns a provider by name, falling back to the default for "".
func (f *Factory) Get(name string) (Provider, error) {
	if name == "" {
		name = f.defaultProvider
	}

	provider, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("storage provider '%s' not found", name)
	}
	return provider, nil
}

// GetDefault returns the default provider.
func (f *Factory) GetDefault() Provider {
	provider, _ := f.Get(f.defaultProvider)
	return provider
}

// ListProviders lists the available provider names.
func (f *Factory) ListProviders() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	return names
}
