package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lakestack/hometrace/internal/models"
)

var ErrPropertyNotFound = errors.New("property not found")

type PropertyRepository struct {
	db *pgxpool.Pool
}

func NewPropertyRepository(db *pgxpool.Pool) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// GetByID retrieves a property by ID
func (r *PropertyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	query := `
		SELECT id, description, street, suburb, state, postcode, agent_id, created_at
		FROM properties
		WHERE id = $1
	`

	var p models.Property
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Description,
		&p.Address.Street,
		&p.Address.Suburb,
		&p.Address.State,
		&p.Address.Postcode,
		&p.AgentID,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}

	return &p, nil
}

// Create inserts a property
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO properties (id, description, street, suburb, state, postcode, agent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`, p.ID, p.Description, p.Address.Street, p.Address.Suburb, p.Address.State,
		p.Address.Postcode, p.AgentID).Scan(&p.CreatedAt)
}

// Count returns the number of listings, limited to one agent when agentID
// is set
func (r *PropertyRepository) Count(ctx context.Context, agentID *uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM properties WHERE $1::uuid IS NULL OR agent_id = $1
	`, agentID).Scan(&n)
	return n, err
}
