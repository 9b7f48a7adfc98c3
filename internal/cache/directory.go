package cache

import (
	"context"
	"time"

	"github.com/biamino/team-report-bot/types"
)

// Directory is the cached read side of the employee/task store, shared
// by the dialog engine and the scheduler so neither hammers the store
// on every interaction.
type Directory struct {
	cache *Cache
	data  types.DataStore
}

func NewDirectory(c *Cache, data types.DataStore) *Directory {
	return &Directory{cache: c, data: data}
}

func (d *Directory) Employees(ctx context.Context) ([]types.Employee, error) {
	v, err := d.cache.Get(ctx, KeyEmployees(), func(ctx context.Context) (interface{}, error) {
		return d.data.ListEmployees(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Employee), nil
}

func (d *Directory) EmployeeByTelegramID(ctx context.Context, telegramID int64) (*types.Employee, error) {
	emps, err := d.Employees(ctx)
	if err != nil {
		return nil, err
	}
	for i := range emps {
		if emps[i].TelegramID != 0 && emps[i].TelegramID == telegramID {
			return &emps[i], nil
		}
	}
	return nil, nil
}

func (d *Directory) EmployeeByID(ctx context.Context, employeeID string) (*types.Employee, error) {
	emps, err := d.Employees(ctx)
	if err != nil {
		return nil, err
	}
	for i := range emps {
		if emps[i].ID == employeeID {
			return &emps[i], nil
		}
	}
	return nil, nil
}

func (d *Directory) TasksWithoutReport(ctx context.Context, employeeID string, day time.Time) ([]types.Task, error) {
	key := KeyTasksWithoutReport(employeeID, day)
	v, err := d.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return d.data.ListTasksWithoutReport(ctx, employeeID, day)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Task), nil
}

func (d *Directory) EmployeesWithoutReport(ctx context.Context, day time.Time) ([]types.Employee, error) {
	key := KeyEmployeesWithoutReport(day)
	v, err := d.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return d.data.ListEmployeesWithoutReport(ctx, day)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Employee), nil
}

// InvalidateReportDay drops the entries a freshly submitted report
// makes stale.
func (d *Directory) InvalidateReportDay(employeeID string, day time.Time) {
	d.cache.Invalidate(KeyTasksWithoutReport(employeeID, day))
	d.cache.Invalidate(KeyEmployeesWithoutReport(day))
}

// InvalidateTasks drops the open-task entry for one employee, e.g.
// after a sync upserted new tasks for them.
func (d *Directory) InvalidateTasks(employeeID string, day time.Time) {
	d.cache.Invalidate(KeyTasksWithoutReport(employeeID, day))
}
