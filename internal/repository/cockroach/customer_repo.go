package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
)

// CustomerRepository handles customer records
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository creates a new CustomerRepository
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts a customer; a phone already on file returns repository.ErrDuplicate
func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (customer_id, name, phone, company, assigned_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		customer.ID,
		customer.Name,
		customer.Phone,
		customer.Company,
		customer.AssignedUserID,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "create customer")
	}
	return nil
}

// GetByID retrieves a customer by id
func (r *CustomerRepository) GetByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	return r.getOne(ctx, `WHERE customer_id = $1`, customerID)
}

// GetByPhone retrieves a customer by phone
func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return r.getOne(ctx, `WHERE phone = $1`, phone)
}

// UpdateAssignedUser moves the customer to another agent
func (r *CustomerRepository) UpdateAssignedUser(ctx context.Context, customerID, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET assigned_user_id = $2, updated_at = $3 WHERE customer_id = $1`,
		customerID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update assigned user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) getOne(ctx context.Context, where string, arg any) (*domain.Customer, error) {
	query := `
		SELECT customer_id, name, phone, company, assigned_user_id, created_at, updated_at
		FROM customers ` + where

	customer := &domain.Customer{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Company,
		&customer.AssignedUserID,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "get customer")
	}
	return customer, nil
}
