package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmoiron/sqlx"
)

// EmployeesRepository is the roster: the single source of truth for who attends the next call.
type EmployeesRepository interface {
	ListAttending(ctx context.Context) ([]model.Employee, error)
	List(ctx context.Context) ([]model.Employee, error)
	Get(ctx context.Context, id string) (*model.Employee, error)
	SetAttendance(ctx context.Context, id string, attends bool) error
	Register(ctx context.Context, id, displayName string) error
}

type EmployeesRepositoryImpl struct {
	db *sqlx.DB
}

func NewEmployeesRepository(db *sqlx.DB) *EmployeesRepositoryImpl {
	return &EmployeesRepositoryImpl{db: db}
}

var _ EmployeesRepository = (*EmployeesRepositoryImpl)(nil)

func (r *EmployeesRepositoryImpl) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// ListAttending returns attending employees ordered by id.
func (r *EmployeesRepositoryImpl) ListAttending(ctx context.Context) ([]model.Employee, error) {
	rows := []model.Employee{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, displayname, attends
		  FROM Employee
		 WHERE attends = ?
		 ORDER BY id
	`, true)
	if err != nil {
		return nil, fmt.Errorf("list attending: %w", err)
	}
	return rows, nil
}

func (r *EmployeesRepositoryImpl) List(ctx context.Context) ([]model.Employee, error) {
	rows := []model.Employee{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, displayname, attends
		  FROM Employee
		 ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return rows, nil
}

func (r *EmployeesRepositoryImpl) Get(ctx context.Context, id string) (*model.Employee, error) {
	var e model.Employee
	err := r.db.GetContext(ctx, &e, `
		SELECT id, displayname, attends
		  FROM Employee
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

// SetAttendance flips the attends flag; ErrNotFound when the id was never registered.
func (r *EmployeesRepositoryImpl) SetAttendance(ctx context.Context, id string, attends bool) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var one int
		err := tx.QueryRowxContext(ctx, `SELECT 1 FROM Employee WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup employee: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE Employee SET attends = ? WHERE id = ?`, attends, id); err != nil {
			return fmt.Errorf("update attendance: %w", err)
		}
		return nil
	})
}

// Register inserts a new attending employee. It never overwrites: an existing id yields ErrAlreadyExists.
func (r *EmployeesRepositoryImpl) Register(ctx context.Context, id, displayName string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var one int
		err := tx.QueryRowxContext(ctx, `SELECT 1 FROM Employee WHERE id = ?`, id).Scan(&one)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup employee: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO Employee (id, displayname, attends)
			VALUES (?, ?, ?)
		`, id, displayName, true)
		if isDuplicateKey(err) {
			// lost the race against a concurrent register
			return ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert employee: %w", err)
		}
		return nil
	})
}
