package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stagehand/adminauth/internal/config"
)

// FactoryFunc builds a backend from the archive configuration
type FactoryFunc func(*config.AuditArchiveConfig) (Storage, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]FactoryFunc)
)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// NewStorage creates the backend named by cfg.Backend
func NewStorage(cfg *config.AuditArchiveConfig) (Storage, error) {
	mu.RLock()
	factory, ok := factories[cfg.Backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported archive backend: %s (registered: %s)", cfg.Backend, strings.Join(Registered(), ", "))
	}
	return factory(cfg)
}

// Registered returns the sorted names of all registered backends
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
