package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stageflow/internal/model"
)

type ClientRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewClientRepository(db *pgxpool.Pool, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{db: db, logger: logger}
}

func (r *ClientRepository) Insert(ctx context.Context, c *model.Client) (int, error) {
	r.logger.Debug("Inserting client", zap.String("name", c.Name))

	var id int
	err := r.db.QueryRow(ctx, `
        INSERT INTO clients (name, contact, email)
        VALUES ($1, $2, $3)
        RETURNING id
    `, c.Name, c.Contact, c.Email).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert client", zap.Error(err))
		return 0, err
	}

	r.logger.Info("Client inserted successfully",
		zap.Int("id", id),
		zap.String("name", c.Name),
	)
	return id, nil
}

func (r *ClientRepository) List(ctx context.Context) ([]model.Client, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, name, contact, email, created_at
        FROM clients
        ORDER BY name ASC
    `)
	if err != nil {
		r.logger.Error("Failed to list clients", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	clients := []model.Client{}
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *ClientRepository) InsertOpportunity(ctx context.Context, o *model.Opportunity) (int, error) {
	var id int
	err := r.db.QueryRow(ctx, `
        INSERT INTO opportunities (client, title, value, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, o.Client, o.Title, o.Value, o.Status).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert opportunity", zap.Error(err))
		return 0, err
	}
	return id, nil
}

func (r *ClientRepository) ListOpportunities(ctx context.Context) ([]model.Opportunity, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, client, title, value, status, created_at
        FROM opportunities
        ORDER BY created_at DESC
    `)
	if err != nil {
		r.logger.Error("Failed to list opportunities", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	opportunities := []model.Opportunity{}
	for rows.Next() {
		var o model.Opportunity
		if err := rows.Scan(&o.ID, &o.Client, &o.Title, &o.Value, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		opportunities = append(opportunities, o)
	}
	return opportunities, rows.Err()
}
