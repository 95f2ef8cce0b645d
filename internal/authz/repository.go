package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// EmployeeRepository reads employees from PostgreSQL.
type EmployeeRepository struct {
	db db.Querier
}

// NewEmployeeRepository constructs the repository.
func NewEmployeeRepository(q db.Querier) *EmployeeRepository {
	return &EmployeeRepository{db: q}
}

// FindByEmail returns the employee with email.
func (r *EmployeeRepository) FindByEmail(ctx context.Context, email string) (Employee, error) {
	var e Employee
	err := r.db.QueryRow(ctx, `SELECT id, COALESCE(user_id, ''), email, name, department, position
FROM employees WHERE lower(email) = lower($1)`, email).
		Scan(&e.ID, &e.UserID, &e.Email, &e.Name, &e.Department, &e.Position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, fmt.Errorf("authz: find employee: %w", err)
	}
	return e, nil
}

// Provision inserts a minimal employee. Concurrent provisioning of the same
// email converges on one row.
func (r *EmployeeRepository) Provision(ctx context.Context, emp Employee) (Employee, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO employees (user_id, email, name, department, position)
VALUES (NULLIF($1, ''), lower($2), $3, $4, $5)
ON CONFLICT (email) DO UPDATE SET user_id = COALESCE(employees.user_id, EXCLUDED.user_id)
RETURNING id, COALESCE(user_id, ''), email, name, department, position`,
		emp.UserID, emp.Email, emp.Name, emp.Department, emp.Position).
		Scan(&emp.ID, &emp.UserID, &emp.Email, &emp.Name, &emp.Department, &emp.Position)
	if err != nil {
		return Employee{}, fmt.Errorf("authz: provision employee: %w", err)
	}
	return emp, nil
}
