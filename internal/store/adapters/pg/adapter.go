// Package pg implementa el adapter PostgreSQL sobre pgxpool.
//
// Identidades y grupos se guardan como una fila por documento; las listas
// (devices, miembros, permisos) van en columnas JSONB y se reescriben junto
// con la fila dentro de la misma transacción SELECT ... FOR UPDATE.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/store"
	migrations "github.com/dropDatabas3/ciciauth/migrations/postgres"
)

func init() {
	store.RegisterAdapter(&postgresAdapter{})
}

type postgresAdapter struct{}

func (a *postgresAdapter) Name() string { return "postgres" }

func (a *postgresAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return NewConn(pool), nil
}

// Conn es una conexión activa.
type Conn struct {
	pool       *pgxpool.Pool
	identities *identityRepo
	families   *familyRepo
}

// NewConn envuelve un pool ya abierto.
func NewConn(pool *pgxpool.Pool) *Conn {
	return &Conn{
		pool:       pool,
		identities: &identityRepo{pool: pool},
		families:   &familyRepo{pool: pool},
	}
}

func (c *Conn) Name() string                   { return "postgres" }
func (c *Conn) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

// Pool expone el pool para métricas.
func (c *Conn) Pool() *pgxpool.Pool { return c.pool }

func (c *Conn) Identities() repository.IdentityRepository { return c.identities }
func (c *Conn) Families() repository.FamilyRepository     { return c.families }

// Migrate aplica las migraciones embebidas.
func (c *Conn) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	migs, err := store.ParseMigrations(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, err
	}
	return store.RunMigrations(ctx, c.pool, migs)
}

// ─── helpers ───

// uniqueFields mapea índices únicos a campos de dominio.
var uniqueFields = map[string]string{
	"identities_email_key":    "email",
	"identities_username_key": "username",
	"identities_phone_key":    "phone",
	"identities_external_key": "external",
	"identities_pkey":         "id",
	"family_groups_pkey":      "id",
}

// mapErr traduce errores de pgx a errores de repositorio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			field := uniqueFields[pgErr.ConstraintName]
			if field == "" {
				field = pgErr.ConstraintName
			}
			return &repository.ConflictError{Field: field}
		case "23514", "23502": // check / not null
			return fmt.Errorf("%w: %s", repository.ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}
