// Package db keeps the single-file store alive across an unreliable
// desktop lifetime and exposes the bookkeeping queries on top of it.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProjectIDRequired = errors.New("project_id is required")
	ErrNotFound          = errors.New("record not found")
)

// Queries is the bookkeeping CRUD surface. It holds no connection of its
// own: every call fetches the current handle from the manager, so a
// restore or corruption recovery is transparent to callers.
type Queries struct {
	mgr *Manager
}

// NewQueries creates a query surface backed by the connection manager.
func NewQueries(mgr *Manager) *Queries {
	return &Queries{mgr: mgr}
}

func (q *Queries) handle() (*Handle, error) {
	return q.mgr.Current()
}

// ----------------------------------------
// Projects
// ----------------------------------------

const projectColumns = `id, name, COALESCE(client, ''), COALESCE(address, ''),
	status, COALESCE(budget, 0), COALESCE(archived, 0), created_at, updated_at`

// CreateProject inserts a new project. An empty ID gets a generated one.
func (q *Queries) CreateProject(ctx context.Context, p Project) error {
	h, err := q.handle()
	if err != nil {
		return err
	}
	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO projects (id, name, client, address, status, budget, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, newID(p.ID), p.Name, p.Client, p.Address, orDefault(p.Status, "active"), p.Budget, p.Archived)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject returns one project by id.
func (q *Queries) GetProject(ctx context.Context, id string) (*Project, error) {
	h, err := q.handle()
	if err != nil {
		return nil, err
	}
	var p Project
	err = h.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Client, &p.Address, &p.Status, &p.Budget, &p.Archived, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// ListProjects returns projects, newest first.
func (q *Queries) ListProjects(ctx context.Context, includeArchived bool) ([]Project, error) {
	h, err := q.handle()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeArchived {
		query += ` WHERE COALESCE(archived, 0) = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := h.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Client, &p.Address, &p.Status, &p.Budget, &p.Archived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ----------------------------------------
// Employees
// ----------------------------------------

// CreateEmployee inserts a new employee.
func (q *Queries) CreateEmployee(ctx context.Context, e Employee) error {
	h, err := q.handle()
	if err != nil {
		return err
	}
	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO employees (id, name, role, phone, hourly_rate)
		VALUES (?, ?, ?, ?, ?)
	`, newID(e.ID), e.Name, e.Role, e.Phone, e.HourlyRate)
	if err != nil {
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

// ListEmployees returns all employees ordered by name.
func (q *Queries) ListEmployees(ctx context.Context) ([]Employee, error) {
	h, err := q.handle()
	if err != nil {
		return nil, err
	}
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, name, COALESCE(role, ''), COALESCE(phone, ''), COALESCE(hourly_rate, 0), created_at
		FROM employees
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Role, &e.Phone, &e.HourlyRate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// ----------------------------------------
// Materials
// ----------------------------------------

// CreateMaterial books a material purchase to a project.
func (q *Queries) CreateMaterial(ctx context.Context, m Material) error {
	if m.ProjectID == "" {
		return ErrProjectIDRequired
	}
	h, err := q.handle()
	if err != nil {
		return err
	}
	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO materials (id, project_id, name, quantity, unit, unit_price, supplier)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, newID(m.ID), m.ProjectID, m.Name, m.Quantity, m.Unit, m.UnitPrice, m.Supplier)
	if err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// ListMaterials returns materials for a project, newest first.
func (q *Queries) ListMaterials(ctx context.Context, projectID string) ([]Material, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	h, err := q.handle()
	if err != nil {
		return nil, err
	}
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, project_id, name, COALESCE(quantity, 0), COALESCE(unit, ''),
		       COALESCE(unit_price, 0), COALESCE(supplier, ''), created_at
		FROM materials
		WHERE project_id = ?
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Quantity, &m.Unit, &m.UnitPrice, &m.Supplier, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// ----------------------------------------
// Work logs
// ----------------------------------------

// CreateWorkLog records hours worked.
func (q *Queries) CreateWorkLog(ctx context.Context, w WorkLog) error {
	if w.ProjectID == "" {
		return ErrProjectIDRequired
	}
	h, err := q.handle()
	if err != nil {
		return err
	}
	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO work_logs (id, project_id, employee_id, work_date, hours, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, newID(w.ID), w.ProjectID, w.EmployeeID, w.WorkDate, w.Hours, w.Note)
	if err != nil {
		return fmt.Errorf("create work log: %w", err)
	}
	return nil
}

// ListWorkLogs returns work logs for a project, newest first.
func (q *Queries) ListWorkLogs(ctx context.Context, projectID string) ([]WorkLog, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	h, err := q.handle()
	if err != nil {
		return nil, err
	}
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, project_id, employee_id, work_date, COALESCE(hours, 0), COALESCE(note, ''), created_at
		FROM work_logs
		WHERE project_id = ?
		ORDER BY work_date DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query work logs: %w", err)
	}
	defer rows.Close()

	var logs []WorkLog
	for rows.Next() {
		var w WorkLog
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.EmployeeID, &w.WorkDate, &w.Hours, &w.Note, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan work log: %w", err)
		}
		logs = append(logs, w)
	}
	return logs, rows.Err()
}

// ----------------------------------------
// Payments
// ----------------------------------------

// CreatePayment books a payment against a project.
func (q *Queries) CreatePayment(ctx context.Context, p Payment) error {
	if p.ProjectID == "" {
		return ErrProjectIDRequired
	}
	h, err := q.handle()
	if err != nil {
		return err
	}
	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO payments (id, project_id, amount, direction, method, paid_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, newID(p.ID), p.ProjectID, p.Amount, orDefault(p.Direction, "in"), p.Method, p.PaidAt, p.Note)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// ListPayments returns payments for a project, newest first.
func (q *Queries) ListPayments(ctx context.Context, projectID string) ([]Payment, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	h, err := q.handle()
	if err != nil {
		return nil, err
	}
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, project_id, amount, direction, COALESCE(method, ''),
		       COALESCE(paid_at, ''), COALESCE(note, ''), created_at
		FROM payments
		WHERE project_id = ?
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Amount, &p.Direction, &p.Method, &p.PaidAt, &p.Note, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// newID keeps caller-chosen ids and generates one otherwise.
func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
