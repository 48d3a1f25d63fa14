package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

type identityRepo struct{ pool *pgxpool.Pool }

const identityColumns = `id, username, email, phone, password_hash, ext_provider, ext_provider_id,
	profile, status, role, is_minor, email_verified, permissions, failed_attempts, lock_until,
	devices, family_group_id, parent_id, last_login_at, created_at, updated_at`

func scanIdentity(row pgx.Row) (*repository.Identity, error) {
	var (
		i                    repository.Identity
		extProvider, extID   *string
		profileRaw, permsRaw []byte
		devicesRaw           []byte
		status, role         string
	)
	err := row.Scan(
		&i.ID, &i.Username, &i.Email, &i.Phone, &i.PasswordHash, &extProvider, &extID,
		&profileRaw, &status, &role, &i.IsMinor, &i.EmailVerified, &permsRaw, &i.FailedAttempts, &i.LockUntil,
		&devicesRaw, &i.FamilyGroupID, &i.ParentID, &i.LastLoginAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	i.Status = types.Status(status)
	i.Role = types.Role(role)
	if extProvider != nil && extID != nil {
		i.External = &repository.ExternalLink{Provider: *extProvider, ProviderID: *extID}
	}
	if err := unmarshalJSONB(profileRaw, &i.Profile); err != nil {
		return nil, fmt.Errorf("pg: identity %s profile: %w", i.ID, err)
	}
	if err := unmarshalJSONB(permsRaw, &i.Permissions); err != nil {
		return nil, fmt.Errorf("pg: identity %s permissions: %w", i.ID, err)
	}
	if err := unmarshalJSONB(devicesRaw, &i.Devices); err != nil {
		return nil, fmt.Errorf("pg: identity %s devices: %w", i.ID, err)
	}
	return &i, nil
}

func (r *identityRepo) getOne(ctx context.Context, where string, args ...any) (*repository.Identity, error) {
	q := `SELECT ` + identityColumns + ` FROM identities WHERE ` + where + ` LIMIT 1`
	return scanIdentity(r.pool.QueryRow(ctx, q, args...))
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*repository.Identity, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *identityRepo) GetByLogin(ctx context.Context, login string) (*repository.Identity, error) {
	return r.getOne(ctx, `email = $1 OR username = $2`, repository.NormalizeEmail(login), login)
}

func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*repository.Identity, error) {
	return r.getOne(ctx, `email = $1`, repository.NormalizeEmail(email))
}

func (r *identityRepo) GetByExternal(ctx context.Context, provider, providerID string) (*repository.Identity, error) {
	return r.getOne(ctx, `ext_provider = $1 AND ext_provider_id = $2`, provider, providerID)
}

func (r *identityRepo) Create(ctx context.Context, ident *repository.Identity) error {
	if err := ident.Validate(); err != nil {
		return err
	}
	args, err := identityArgs(ident)
	if err != nil {
		return err
	}
	const q = `INSERT INTO identities (` + identityColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err = r.pool.Exec(ctx, q, args...)
	return mapErr(err)
}

func (r *identityRepo) Update(ctx context.Context, id string, fn func(*repository.Identity) error) (*repository.Identity, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanIdentity(tx.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(cur); err != nil {
		return nil, err
	}
	cur.ID = id
	cur.UpdatedAt = time.Now().UTC()
	if err := cur.Validate(); err != nil {
		return nil, err
	}
	args, err := identityArgs(cur)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE identities SET
		username=$2, email=$3, phone=$4, password_hash=$5, ext_provider=$6, ext_provider_id=$7,
		profile=$8, status=$9, role=$10, is_minor=$11, email_verified=$12, permissions=$13,
		failed_attempts=$14, lock_until=$15, devices=$16, family_group_id=$17, parent_id=$18,
		last_login_at=$19, created_at=$20, updated_at=$21
		WHERE id=$1`
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cur, nil
}

// identityArgs arma los 21 parámetros en el orden de identityColumns.
func identityArgs(i *repository.Identity) ([]any, error) {
	profile, err := json.Marshal(i.Profile)
	if err != nil {
		return nil, err
	}
	perms := i.Permissions
	if perms == nil {
		perms = []string{}
	}
	permsRaw, err := json.Marshal(perms)
	if err != nil {
		return nil, err
	}
	devices := i.Devices
	if devices == nil {
		devices = []repository.Device{}
	}
	devicesRaw, err := json.Marshal(devices)
	if err != nil {
		return nil, err
	}
	var extProvider, extID *string
	if i.External != nil {
		extProvider, extID = &i.External.Provider, &i.External.ProviderID
	}
	created := i.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := i.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return []any{
		i.ID, i.Username, i.Email, i.Phone, i.PasswordHash, extProvider, extID,
		string(profile), string(i.Status), string(i.Role), i.IsMinor, i.EmailVerified, string(permsRaw),
		i.FailedAttempts, i.LockUntil, string(devicesRaw), i.FamilyGroupID, i.ParentID, i.LastLoginAt,
		created, updated,
	}, nil
}

func unmarshalJSONB(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
