package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbook-app/billbook/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for master data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateParty(ctx context.Context, p Party) (string, error) {
	query := `
		INSERT INTO parties (id, business_id, name, phone, address, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id
	`
	id := uuid.NewString()
	if err := r.pool.QueryRow(ctx, query, id, p.BusinessID, p.Name, p.Phone, p.Address).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetParty(ctx context.Context, id, businessID string) (*Party, error) {
	query := `
		SELECT id, business_id, name, phone, address, is_active, created_at, updated_at
		FROM parties
		WHERE id = $1 AND business_id = $2
	`
	var p Party
	err := r.pool.QueryRow(ctx, query, id, businessID).Scan(
		&p.ID, &p.BusinessID, &p.Name, &p.Phone, &p.Address, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpdateParty(ctx context.Context, id, businessID string, req UpdatePartyRequest) error {
	query := `
		UPDATE parties
		SET name = COALESCE($1, name),
		    phone = COALESCE($2, phone),
		    address = COALESCE($3, address),
		    updated_at = $4
		WHERE id = $5 AND business_id = $6
	`
	cmdTag, err := r.pool.Exec(ctx, query, req.Name, req.Phone, req.Address, time.Now(), id, businessID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *Repository) SetPartyActive(ctx context.Context, id, businessID string, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE parties SET is_active = $1, updated_at = $2 WHERE id = $3 AND business_id = $4`,
		active, time.Now(), id, businessID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ListActiveParties backs the party select on the challan and bill forms.
func (r *Repository) ListActiveParties(ctx context.Context, businessID string) ([]Party, error) {
	query := `
		SELECT id, business_id, name, phone, address, is_active, created_at, updated_at
		FROM parties
		WHERE business_id = $1 AND is_active = TRUE
		ORDER BY name ASC
	`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Phone, &p.Address, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (r *Repository) CreateMaterial(ctx context.Context, m Material) (string, error) {
	query := `
		INSERT INTO materials (id, business_id, name, unit, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id
	`
	id := uuid.NewString()
	if err := r.pool.QueryRow(ctx, query, id, m.BusinessID, m.Name, m.Unit).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetMaterial(ctx context.Context, id, businessID string) (*Material, error) {
	query := `
		SELECT id, business_id, name, unit, is_active, created_at, updated_at
		FROM materials
		WHERE id = $1 AND business_id = $2
	`
	var m Material
	err := r.pool.QueryRow(ctx, query, id, businessID).Scan(
		&m.ID, &m.BusinessID, &m.Name, &m.Unit, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) UpdateMaterial(ctx context.Context, id, businessID string, req UpdateMaterialRequest) error {
	query := `
		UPDATE materials
		SET name = COALESCE($1, name),
		    unit = COALESCE($2, unit),
		    updated_at = $3
		WHERE id = $4 AND business_id = $5
	`
	cmdTag, err := r.pool.Exec(ctx, query, req.Name, req.Unit, time.Now(), id, businessID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *Repository) SetMaterialActive(ctx context.Context, id, businessID string, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE materials SET is_active = $1, updated_at = $2 WHERE id = $3 AND business_id = $4`,
		active, time.Now(), id, businessID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ListActiveMaterials backs the material select on the challan form.
func (r *Repository) ListActiveMaterials(ctx context.Context, businessID string) ([]Material, error) {
	query := `
		SELECT id, business_id, name, unit, is_active, created_at, updated_at
		FROM materials
		WHERE business_id = $1 AND is_active = TRUE
		ORDER BY name ASC
	`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.BusinessID, &m.Name, &m.Unit, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}
