package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/cache"
	"github.com/biamino/team-report-bot/types"
)

type stubData struct {
	mu           sync.Mutex
	employees    []types.Employee
	tasks        map[string][]types.Task
	noReport     []types.Employee
	noReportDay  time.Time
	deadlineFrom time.Time
	deadlineTo   time.Time
	deadlined    []types.Task
	upserted     []types.Task
}

func newStubData() *stubData {
	return &stubData{tasks: make(map[string][]types.Task)}
}

func (d *stubData) ListEmployees(context.Context) ([]types.Employee, error) {
	return d.employees, nil
}

func (d *stubData) GetEmployeeByTelegramID(_ context.Context, telegramID int64) (*types.Employee, error) {
	for _, emp := range d.employees {
		if emp.TelegramID == telegramID {
			e := emp
			return &e, nil
		}
	}
	return nil, nil
}

func (d *stubData) ListTasksWithoutReport(_ context.Context, employeeID string, _ time.Time) ([]types.Task, error) {
	return d.tasks[employeeID], nil
}

func (d *stubData) ListEmployeesWithoutReport(_ context.Context, day time.Time) ([]types.Employee, error) {
	d.mu.Lock()
	d.noReportDay = day
	d.mu.Unlock()
	return d.noReport, nil
}

func (d *stubData) ListTasksWithDeadlineBetween(_ context.Context, from, to time.Time) ([]types.Task, error) {
	d.mu.Lock()
	d.deadlineFrom = from
	d.deadlineTo = to
	d.mu.Unlock()
	return d.deadlined, nil
}

func (d *stubData) HasReport(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (d *stubData) AppendReport(context.Context, types.Report) error { return nil }

func (d *stubData) UpsertTask(_ context.Context, task types.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upserted = append(d.upserted, task)
	return nil
}

type stubDispatcher struct {
	mu       sync.Mutex
	calls    [][]types.Recipient
	payloads map[string]types.Payload
}

func (d *stubDispatcher) Dispatch(_ context.Context, recipients []types.Recipient, build func(types.Recipient) types.Payload) types.FanoutResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.payloads == nil {
		d.payloads = make(map[string]types.Payload)
	}
	for _, r := range recipients {
		d.payloads[r.ID] = build(r)
	}
	d.calls = append(d.calls, recipients)
	return types.FanoutResult{Sent: len(recipients)}
}

type staticSource struct {
	tasks []types.Task
	err   error
}

func (s *staticSource) FetchTasks(context.Context) ([]types.Task, error) {
	return s.tasks, s.err
}

func newTestScheduler(data *stubData, dispatcher *stubDispatcher, source TaskSource, now time.Time) *Scheduler {
	dir := cache.NewDirectory(cache.New(time.Minute, zap.NewNop()), data)
	s := NewScheduler(data, dir, dispatcher, source, Config{}, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func TestTriggerSkipsOverlappingFiring(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once
	trig := NewTrigger("slow", func(context.Context) {
		startedOnce.Do(func() { close(started) })
		<-release
	}, zap.NewNop())

	first := make(chan bool)
	go func() {
		first <- trig.Fire(context.Background())
	}()
	<-started

	assert.False(t, trig.Fire(context.Background()), "overlapping firing must be skipped")

	close(release)
	assert.True(t, <-first)
	assert.True(t, trig.Fire(context.Background()), "trigger is usable again after the run finishes")
}

func TestRemindUnreportedTargetsOnlyOpenTasks(t *testing.T) {
	data := newStubData()
	data.employees = []types.Employee{
		{ID: "e1", TelegramID: 100},
		{ID: "e2", TelegramID: 101},
	}
	data.tasks["e1"] = []types.Task{{ID: "t1", EmployeeID: "e1"}}
	dispatcher := &stubDispatcher{}
	s := newTestScheduler(data, dispatcher, nil, time.Now())

	s.RemindUnreported(context.Background())

	require.Len(t, dispatcher.calls, 1)
	require.Len(t, dispatcher.calls[0], 1)
	assert.Equal(t, "e1", dispatcher.calls[0][0].ID)
}

func TestRemindLateQueriesYesterday(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	data := newStubData()
	data.noReport = []types.Employee{{ID: "e1", TelegramID: 100}}
	dispatcher := &stubDispatcher{}
	s := newTestScheduler(data, dispatcher, nil, now)

	s.RemindLate(context.Background())

	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), data.noReportDay)
	require.Len(t, dispatcher.calls, 1)
	require.Len(t, dispatcher.calls[0], 1)
}

func TestDeadlineWarningWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 25, 0, 0, time.UTC)
	data := newStubData()
	data.employees = []types.Employee{{ID: "e1", TelegramID: 100}}
	deadline := time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC)
	data.deadlined = []types.Task{{ID: "t1", EmployeeID: "e1", Description: "Сдать макет", Deadline: &deadline}}
	dispatcher := &stubDispatcher{}
	s := newTestScheduler(data, dispatcher, nil, now)

	s.DeadlineWarning(context.Background())

	assert.Equal(t, time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC), data.deadlineFrom)
	assert.Equal(t, time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC), data.deadlineTo)

	require.Len(t, dispatcher.calls, 1)
	require.Len(t, dispatcher.calls[0], 1)
	assert.Contains(t, dispatcher.payloads["e1"].Text, "Сдать макет")
}

func TestDeadlineWarningGroupsTasksPerOwner(t *testing.T) {
	data := newStubData()
	data.employees = []types.Employee{
		{ID: "e1", TelegramID: 100},
		{ID: "e2", TelegramID: 101},
	}
	data.deadlined = []types.Task{
		{ID: "t1", EmployeeID: "e1", Description: "Первая"},
		{ID: "t2", EmployeeID: "e2", Description: "Чужая"},
		{ID: "t3", EmployeeID: "e1", Description: "Вторая"},
	}
	dispatcher := &stubDispatcher{}
	s := newTestScheduler(data, dispatcher, nil, time.Now())

	s.DeadlineWarning(context.Background())

	require.Len(t, dispatcher.calls, 1)
	require.Len(t, dispatcher.calls[0], 2, "one message per owner, not per task")
	assert.Contains(t, dispatcher.payloads["e1"].Text, "Первая")
	assert.Contains(t, dispatcher.payloads["e1"].Text, "Вторая")
	assert.NotContains(t, dispatcher.payloads["e1"].Text, "Чужая")
}

func TestSyncTasksUpsertsFetched(t *testing.T) {
	data := newStubData()
	source := &staticSource{tasks: []types.Task{
		{ID: "t1", EmployeeID: "e1", Description: "Новая задача"},
		{ID: "t2", EmployeeID: "e2", Description: "Еще одна"},
	}}
	dispatcher := &stubDispatcher{}
	s := newTestScheduler(data, dispatcher, source, time.Now())

	s.SyncTasks(context.Background())

	require.Len(t, data.upserted, 2)
	assert.Equal(t, "t1", data.upserted[0].ID)
	assert.Empty(t, dispatcher.calls, "sync never notifies by itself")
}

func TestSyncTasksFetchFailureLeavesStoreUntouched(t *testing.T) {
	data := newStubData()
	source := &staticSource{err: errors.New("upstream 503")}
	dispatcher := &stubDispatcher{}
	s := newTestScheduler(data, dispatcher, source, time.Now())

	s.SyncTasks(context.Background())

	assert.Empty(t, data.upserted)
}
