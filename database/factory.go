package database

import (
	"fmt"
	"log"

	"github.com/galerly/galerly/config"
	"github.com/galerly/galerly/database/models"
)

// Factory creates and migrates the configured database provider.
type Factory struct {
	provider Provider
}

// NewFactory opens the database named in the configuration and runs
// the schema migrations.
func NewFactory(cfg *config.Config) (*Factory, error) {
	provider, err := NewGormProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database provider: %w", err)
	}

	f := &Factory{provider: provider}
	if err := f.AutoMigrate(); err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	log.Printf("Database provider initialized: %s", provider.Name())
	return f, nil
}

// AutoMigrate migrates every model the service persists.
func (f *Factory) AutoMigrate() error {
	return f.provider.AutoMigrate(
		&models.User{},
		&models.Gallery{},
		&models.Asset{},
		&models.Rendition{},
		&models.GalleryArchive{},
	)
}

// GetProvider returns the active database provider.
func (f *Factory) GetProvider() Provider {
	return f.provider
}

// Close closes the underlying connection.
func (f *Factory) Close() error {
	if f.provider == nil {
		return nil
	}
	return f.provider.Close()
}
