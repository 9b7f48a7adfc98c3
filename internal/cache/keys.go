package cache

import (
	"fmt"
	"time"
)

const dayFormat = "2006-01-02"

func KeyEmployees() string {
	return "employees"
}

func KeyTasksWithoutReport(employeeID string, day time.Time) string {
	return fmt.Sprintf("tasks_noreport:%s:%s", employeeID, day.Format(dayFormat))
}

func KeyEmployeesWithoutReport(day time.Time) string {
	return fmt.Sprintf("employees_noreport:%s", day.Format(dayFormat))
}
