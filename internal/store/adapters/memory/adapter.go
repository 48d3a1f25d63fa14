// Package memory implementa un adapter en memoria: tests, dev y demos.
// Cada Update toma el lock del store completo, por lo que el read-modify-write
// es atómico igual que en pg.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	return New(), nil
}

// Conn es una conexión en memoria. El zero value no es usable: usar New.
type Conn struct {
	identities *identityRepo
	families   *familyRepo
}

// New crea un store vacío.
func New() *Conn {
	return &Conn{
		identities: &identityRepo{byID: map[string]*repository.Identity{}},
		families:   &familyRepo{byID: map[string]*repository.FamilyGroup{}},
	}
}

func (c *Conn) Name() string                   { return "memory" }
func (c *Conn) Ping(ctx context.Context) error { return nil }
func (c *Conn) Close() error                   { return nil }

func (c *Conn) Identities() repository.IdentityRepository { return c.identities }
func (c *Conn) Families() repository.FamilyRepository     { return c.families }

// ─── Identities ───

type identityRepo struct {
	mu   sync.RWMutex
	byID map[string]*repository.Identity
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*repository.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.byID[id]; ok {
		return i.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *identityRepo) GetByLogin(ctx context.Context, login string) (*repository.Identity, error) {
	email := repository.NormalizeEmail(login)
	return r.find(func(i *repository.Identity) bool {
		return i.Email == email || i.Username == login
	})
}

func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*repository.Identity, error) {
	email = repository.NormalizeEmail(email)
	return r.find(func(i *repository.Identity) bool { return i.Email == email })
}

func (r *identityRepo) GetByExternal(ctx context.Context, provider, providerID string) (*repository.Identity, error) {
	return r.find(func(i *repository.Identity) bool {
		return i.External != nil && i.External.Provider == provider && i.External.ProviderID == providerID
	})
}

func (r *identityRepo) find(match func(*repository.Identity) bool) (*repository.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.byID {
		if match(i) {
			return i.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *identityRepo) Create(ctx context.Context, ident *repository.Identity) error {
	if err := ident.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ident.ID]; ok {
		return &repository.ConflictError{Field: "id"}
	}
	if err := r.checkUniqueLocked(ident); err != nil {
		return err
	}
	r.byID[ident.ID] = ident.Clone()
	return nil
}

func (r *identityRepo) Update(ctx context.Context, id string, fn func(*repository.Identity) error) (*repository.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkUniqueLocked(next); err != nil {
		return nil, err
	}
	r.byID[id] = next
	return next.Clone(), nil
}

// checkUniqueLocked valida email/username/teléfono/vínculo externo contra
// los demás documentos. Requiere r.mu tomado.
func (r *identityRepo) checkUniqueLocked(ident *repository.Identity) error {
	for id, o := range r.byID {
		if id == ident.ID {
			continue
		}
		switch {
		case o.Email == ident.Email:
			return &repository.ConflictError{Field: "email"}
		case o.Username == ident.Username:
			return &repository.ConflictError{Field: "username"}
		case ident.Phone != nil && o.Phone != nil && *o.Phone == *ident.Phone:
			return &repository.ConflictError{Field: "phone"}
		case ident.External != nil && o.External != nil && *o.External == *ident.External:
			return &repository.ConflictError{Field: "external"}
		}
	}
	return nil
}

// ─── Families ───

type familyRepo struct {
	mu   sync.RWMutex
	byID map[string]*repository.FamilyGroup
}

func (r *familyRepo) GetByID(ctx context.Context, id string) (*repository.FamilyGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.byID[id]; ok {
		return g.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *familyRepo) Create(ctx context.Context, g *repository.FamilyGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[g.ID]; ok {
		return &repository.ConflictError{Field: "id"}
	}
	r.byID[g.ID] = g.Clone()
	return nil
}

func (r *familyRepo) Update(ctx context.Context, id string, fn func(*repository.FamilyGroup) error) (*repository.FamilyGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	r.byID[id] = next
	return next.Clone(), nil
}

func (r *familyRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}
