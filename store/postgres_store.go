package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/biamino/team-report-bot/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "report_bot"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "report_bot"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) ListEmployees(ctx context.Context) ([]types.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT employee_id, COALESCE(telegram_id, 0), first_name, last_name, created_at, updated_at
FROM employees
ORDER BY last_name, first_name
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmployees(rows)
}

func (s *PostgresStore) GetEmployeeByTelegramID(ctx context.Context, telegramID int64) (*types.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var e types.Employee
	err := s.pool.QueryRow(ctx, `
SELECT employee_id, COALESCE(telegram_id, 0), first_name, last_name, created_at, updated_at
FROM employees
WHERE telegram_id = $1
`, telegramID).Scan(&e.ID, &e.TelegramID, &e.FirstName, &e.LastName, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListTasksWithoutReport returns the employee's tasks that have no
// report row dated day.
func (s *PostgresStore) ListTasksWithoutReport(ctx context.Context, employeeID string, day time.Time) ([]types.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT t.task_id, t.employee_id, t.description, t.deadline, t.created_at, t.updated_at
FROM tasks t
WHERE t.employee_id = $1
  AND NOT EXISTS (
    SELECT 1 FROM reports r
    WHERE r.task_id = t.task_id
      AND r.employee_id = t.employee_id
      AND r.submitted_at::date = $2::date
  )
ORDER BY t.created_at
`, employeeID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *PostgresStore) ListEmployeesWithoutReport(ctx context.Context, day time.Time) ([]types.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT e.employee_id, COALESCE(e.telegram_id, 0), e.first_name, e.last_name, e.created_at, e.updated_at
FROM employees e
WHERE NOT EXISTS (
  SELECT 1 FROM reports r
  WHERE r.employee_id = e.employee_id
    AND r.submitted_at::date = $1::date
)
ORDER BY e.last_name, e.first_name
`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmployees(rows)
}

func (s *PostgresStore) ListTasksWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]types.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT task_id, employee_id, description, deadline, created_at, updated_at
FROM tasks
WHERE deadline >= $1 AND deadline < $2
ORDER BY deadline
`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *PostgresStore) HasReport(ctx context.Context, employeeID string, day time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var ok bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM reports
  WHERE employee_id = $1 AND submitted_at::date = $2::date
)
`, employeeID, day).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// AppendReport inserts the report. The unique day index makes a replay
// of the same confirmation a no-op instead of a duplicate row.
func (s *PostgresStore) AppendReport(ctx context.Context, report types.Report) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO reports (employee_id, task_id, feedback, difficulties, daily_report, submitted_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
ON CONFLICT DO NOTHING
`, report.EmployeeID, report.TaskID, report.Feedback, report.Difficulties, report.DailyReport, report.SubmittedAt)
	return err
}

func (s *PostgresStore) UpsertTask(ctx context.Context, task types.Task) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO tasks (task_id, employee_id, description, deadline)
VALUES ($1, $2, $3, $4)
ON CONFLICT (task_id) DO UPDATE SET
  employee_id = EXCLUDED.employee_id,
  description = EXCLUDED.description,
  deadline = EXCLUDED.deadline,
  updated_at = NOW();
`, task.ID, task.EmployeeID, strings.TrimSpace(task.Description), task.Deadline)
	return err
}

func scanEmployees(rows pgx.Rows) ([]types.Employee, error) {
	var out []types.Employee
	for rows.Next() {
		var e types.Employee
		if err := rows.Scan(&e.ID, &e.TelegramID, &e.FirstName, &e.LastName, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanTasks(rows pgx.Rows) ([]types.Task, error) {
	var out []types.Task
	for rows.Next() {
		var t types.Task
		if err := rows.Scan(&t.ID, &t.EmployeeID, &t.Description, &t.Deadline, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
