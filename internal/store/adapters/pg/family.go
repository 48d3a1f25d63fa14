package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
)

type familyRepo struct{ pool *pgxpool.Pool }

const familyColumns = `id, name, description, creator_id, members, settings, created_at, updated_at`

func scanFamily(row pgx.Row) (*repository.FamilyGroup, error) {
	var (
		g                    repository.FamilyGroup
		membersRaw, settsRaw []byte
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatorID, &membersRaw, &settsRaw, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	if err := unmarshalJSONB(membersRaw, &g.Members); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(settsRaw, &g.Settings); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *familyRepo) GetByID(ctx context.Context, id string) (*repository.FamilyGroup, error) {
	return scanFamily(r.pool.QueryRow(ctx, `SELECT `+familyColumns+` FROM family_groups WHERE id = $1`, id))
}

func (r *familyRepo) Create(ctx context.Context, g *repository.FamilyGroup) error {
	members, settings, err := familyJSON(g)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = g.CreatedAt
	_, err = r.pool.Exec(ctx, `INSERT INTO family_groups (`+familyColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		g.ID, g.Name, g.Description, g.CreatorID, members, settings, g.CreatedAt, g.UpdatedAt)
	return mapErr(err)
}

func (r *familyRepo) Update(ctx context.Context, id string, fn func(*repository.FamilyGroup) error) (*repository.FamilyGroup, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanFamily(tx.QueryRow(ctx, `SELECT `+familyColumns+` FROM family_groups WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(cur); err != nil {
		return nil, err
	}
	cur.ID = id
	cur.UpdatedAt = time.Now().UTC()
	members, settings, err := familyJSON(cur)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE family_groups
		SET name=$2, description=$3, creator_id=$4, members=$5, settings=$6, updated_at=$7
		WHERE id=$1`, id, cur.Name, cur.Description, cur.CreatorID, members, settings, cur.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cur, nil
}

func (r *familyRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM family_groups WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func familyJSON(g *repository.FamilyGroup) (string, string, error) {
	members := g.Members
	if members == nil {
		members = []repository.FamilyMember{}
	}
	m, err := json.Marshal(members)
	if err != nil {
		return "", "", err
	}
	s, err := json.Marshal(g.Settings)
	if err != nil {
		return "", "", err
	}
	return string(m), string(s), nil
}
