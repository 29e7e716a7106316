package persistence

import (
	"fmt"
	"sync"

	"github.com/getkayan/accounts/internal/domain"
	"gorm.io/gorm"
)

// Options tunes a storage provider.
type Options struct {
	Gorm            *gorm.Config
	SkipAutoMigrate bool
}

// Factory is a function that creates a new Storage implementation.
type Factory func(dsn string, opts Options) (domain.Storage, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a new storage factory to the registry.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewStorage creates a new storage implementation based on the registered name.
func NewStorage(name string, dsn string, opts Options) (domain.Storage, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("persistence: unknown storage provider %q", name)
	}

	return factory(dsn, opts)
}
