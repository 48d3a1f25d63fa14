// Package store provee el registry de adaptadores de almacenamiento.
//
// Cada adapter se registra en init() y se selecciona por nombre desde la
// config (storage.driver). Los binarios importan los adapters con blank import.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
)

// Adapter crea conexiones a un backend concreto.
type Adapter interface {
	// Name: "memory", "postgres".
	Name() string
	Connect(ctx context.Context, cfg AdapterConfig) (Connection, error)
}

// Connection es una conexión activa con acceso a los repositorios.
type Connection interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	// ─── Repositorios ───

	Identities() repository.IdentityRepository
	Families() repository.FamilyRepository
}

// Migratable es opcional: conexiones SQL que saben aplicar migraciones.
type Migratable interface {
	Migrate(ctx context.Context) (*MigrationResult, error)
}

// AdapterConfig configura la conexión.
type AdapterConfig struct {
	Name string
	DSN  string

	MaxConns int
	MinConns int
}

// ─── Registry ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter. Llamar en init().
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("store: adapter %q already registered", name))
	}
	adapters[name] = a
}

// ListAdapters retorna los nombres registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open conecta usando el adapter cfg.Name.
func Open(ctx context.Context, cfg AdapterConfig) (Connection, error) {
	registryMu.RLock()
	a, ok := adapters[cfg.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: adapter %q not registered (have %v)", cfg.Name, ListAdapters())
	}
	return a.Connect(ctx, cfg)
}
