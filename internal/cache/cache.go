// Package cache provee un cache key/value con dos backends:
//   - memory: go-cache in-process (dev, instancia única)
//   - redis: compartido entre instancias
//
// Se usa para lecturas calientes (grupos familiares); el store sigue siendo
// la fuente de verdad y toda mutación invalida la key correspondiente.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get retorna ErrNotFound si la key no existe o expiró.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set guarda con TTL; ttl 0 usa el default del backend.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("cache: key not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// GetJSON decodifica la entrada en v. Retorna (false, nil) en miss.
func GetJSON(ctx context.Context, c Client, key string, v any) (bool, error) {
	b, err := c.Get(ctx, key)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		// Entrada corrupta: se trata como miss.
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON serializa v y lo guarda.
func SetJSON(ctx context.Context, c Client, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl)
}
