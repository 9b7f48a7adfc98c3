package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/cache"
	"github.com/biamino/team-report-bot/types"
)

// memSessions mimics the redis-backed store: sessions survive only as
// JSON, so every Get hands back a detached copy.
type memSessions struct {
	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	sessions map[int64][]byte
}

func newMemSessions() *memSessions {
	return &memSessions{
		locks:    make(map[int64]*sync.Mutex),
		sessions: make(map[int64][]byte),
	}
}

func (s *memSessions) Lock(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *memSessions) Get(_ context.Context, userID int64) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	var session types.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *memSessions) Put(_ context.Context, session *types.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = raw
	return nil
}

func (s *memSessions) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

type memData struct {
	mu        sync.Mutex
	employees []types.Employee
	tasks     map[string][]types.Task
	reports   []types.Report
	hasReport map[string]bool
	appendErr error
}

func newMemData() *memData {
	return &memData{
		tasks:     make(map[string][]types.Task),
		hasReport: make(map[string]bool),
	}
}

func (d *memData) ListEmployees(context.Context) ([]types.Employee, error) {
	return d.employees, nil
}

func (d *memData) GetEmployeeByTelegramID(_ context.Context, telegramID int64) (*types.Employee, error) {
	for _, emp := range d.employees {
		if emp.TelegramID == telegramID {
			e := emp
			return &e, nil
		}
	}
	return nil, nil
}

func (d *memData) ListTasksWithoutReport(_ context.Context, employeeID string, _ time.Time) ([]types.Task, error) {
	return d.tasks[employeeID], nil
}

func (d *memData) ListEmployeesWithoutReport(context.Context, time.Time) ([]types.Employee, error) {
	var out []types.Employee
	for _, emp := range d.employees {
		if !d.hasReport[emp.ID] {
			out = append(out, emp)
		}
	}
	return out, nil
}

func (d *memData) ListTasksWithDeadlineBetween(context.Context, time.Time, time.Time) ([]types.Task, error) {
	return nil, nil
}

func (d *memData) HasReport(_ context.Context, employeeID string, _ time.Time) (bool, error) {
	return d.hasReport[employeeID], nil
}

func (d *memData) AppendReport(_ context.Context, report types.Report) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.appendErr != nil {
		return d.appendErr
	}
	d.reports = append(d.reports, report)
	return nil
}

func (d *memData) UpsertTask(context.Context, types.Task) error { return nil }

type recordingDispatcher struct {
	mu    sync.Mutex
	calls [][]types.Recipient
}

func (d *recordingDispatcher) Dispatch(_ context.Context, recipients []types.Recipient, build func(types.Recipient) types.Payload) types.FanoutResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range recipients {
		build(r)
	}
	d.calls = append(d.calls, recipients)
	return types.FanoutResult{Sent: len(recipients)}
}

func (d *recordingDispatcher) lastCall() []types.Recipient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

type fixture struct {
	engine     *Engine
	sessions   *memSessions
	data       *memData
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T, adminIDs ...int64) *fixture {
	t.Helper()
	sessions := newMemSessions()
	data := newMemData()
	dispatcher := &recordingDispatcher{}
	dir := cache.NewDirectory(cache.New(time.Minute, zap.NewNop()), data)
	engine := NewEngine(sessions, data, dir, dispatcher, Config{
		AdminIDs: adminIDs,
		PageSize: 5,
	}, zap.NewNop())
	return &fixture{
		engine:     engine,
		sessions:   sessions,
		data:       data,
		dispatcher: dispatcher,
	}
}

func (f *fixture) addEmployee(id string, telegramID int64, name string) {
	f.data.employees = append(f.data.employees, types.Employee{
		ID:         id,
		TelegramID: telegramID,
		FirstName:  name,
	})
}

func (f *fixture) addTask(employeeID, taskID, description string) {
	f.data.tasks[employeeID] = append(f.data.tasks[employeeID], types.Task{
		ID:          taskID,
		EmployeeID:  employeeID,
		Description: description,
	})
}

func (f *fixture) command(t *testing.T, userID int64, cmd string) *Reply {
	t.Helper()
	reply, err := f.engine.Advance(context.Background(), userID, Input{
		Kind:    InputCommand,
		ChatID:  userID,
		Command: cmd,
	})
	require.NoError(t, err)
	return reply
}

func (f *fixture) text(t *testing.T, userID int64, text string) *Reply {
	t.Helper()
	reply, err := f.engine.Advance(context.Background(), userID, Input{
		Kind:   InputText,
		ChatID: userID,
		Text:   text,
	})
	require.NoError(t, err)
	return reply
}

func (f *fixture) callback(t *testing.T, userID int64, data string) *Reply {
	t.Helper()
	reply, err := f.engine.Advance(context.Background(), userID, Input{
		Kind:     InputCallback,
		ChatID:   userID,
		Callback: data,
	})
	require.NoError(t, err)
	return reply
}

func (f *fixture) session(t *testing.T, userID int64) *types.Session {
	t.Helper()
	session, err := f.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	return session
}

func TestFirstContactAuthenticatesEmployee(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	reply := f.command(t, 100, "start")

	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Анна")

	session := f.session(t, 100)
	require.NotNil(t, session)
	assert.Equal(t, "e1", session.EmployeeID)
	assert.Equal(t, types.StateIdle, session.State)
	assert.False(t, session.IsAdmin)
}

func TestFirstContactRejectsUnknownUser(t *testing.T) {
	f := newFixture(t)

	reply := f.command(t, 999, "start")

	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "не найден")
	assert.Nil(t, f.session(t, 999), "rejected users get no session")
}

func TestFirstContactAuthenticatesAdminWithoutEmployeeRecord(t *testing.T) {
	f := newFixture(t, 7)

	reply := f.command(t, 7, "start")

	require.NotNil(t, reply)
	session := f.session(t, 7)
	require.NotNil(t, session)
	assert.True(t, session.IsAdmin)
	assert.Empty(t, session.EmployeeID)
}

func TestReportFlowWithTaskSelection(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.addTask("e1", "t1", "Сделать отчет по продажам")

	f.command(t, 100, "start")

	reply := f.command(t, 100, "report")
	require.NotNil(t, reply)
	require.Len(t, reply.Buttons, 2, "one task plus the general option")
	assert.Equal(t, "task_t1", reply.Buttons[0][0].Data)
	assert.Equal(t, "task_general", reply.Buttons[1][0].Data)

	reply = f.callback(t, 100, "task_t1")
	require.NotNil(t, reply)
	assert.True(t, reply.Edit)

	f.text(t, 100, "Работа идет по плану")
	f.text(t, 100, "Не хватает данных от коллег")
	reply = f.text(t, 100, "Закрыл половину отчета")
	require.NotNil(t, reply)
	require.Len(t, reply.Buttons, 1, "confirm and restart on one row")
	require.Len(t, reply.Buttons[0], 2)

	reply = f.callback(t, 100, "confirm_report")
	require.NotNil(t, reply)

	require.Len(t, f.data.reports, 1)
	report := f.data.reports[0]
	assert.Equal(t, "e1", report.EmployeeID)
	assert.Equal(t, "t1", report.TaskID)
	assert.Equal(t, "Работа идет по плану", report.Feedback)
	assert.Equal(t, "Не хватает данных от коллег", report.Difficulties)
	assert.Equal(t, "Закрыл половину отчета", report.DailyReport)

	session := f.session(t, 100)
	assert.Equal(t, types.StateIdle, session.State)
	assert.Empty(t, session.Context)
}

func TestReportFlowGeneralWithoutTasks(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	f.command(t, 100, "start")
	reply := f.command(t, 100, "report")
	require.NotNil(t, reply)
	assert.Empty(t, reply.Buttons, "no selection step without open tasks")

	f.text(t, 100, "fb")
	f.text(t, 100, "diff")
	f.text(t, 100, "daily")
	f.callback(t, 100, "confirm_report")

	require.Len(t, f.data.reports, 1)
	assert.Empty(t, f.data.reports[0].TaskID)
}

func TestReportAlreadySubmittedToday(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.data.hasReport["e1"] = true

	f.command(t, 100, "start")
	reply := f.command(t, 100, "report")

	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "уже сдали")
	assert.Empty(t, f.data.reports)
}

func TestReportRejectsForeignTaskCallback(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.addTask("e1", "t1", "Задача")

	f.command(t, 100, "start")
	f.command(t, 100, "report")

	reply := f.callback(t, 100, "task_other")
	require.NotNil(t, reply)

	session := f.session(t, 100)
	assert.Equal(t, types.StateTaskSelection, session.State, "unknown task ids do not advance the flow")
}

func TestOutOfBandInputKeepsState(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.addTask("e1", "t1", "Задача")

	f.command(t, 100, "start")
	f.command(t, 100, "report")
	f.callback(t, 100, "task_t1")

	// A button press where free text is expected.
	reply := f.callback(t, 100, "task_t1")
	require.NotNil(t, reply)

	session := f.session(t, 100)
	assert.Equal(t, types.StateFeedback, session.State)
	assert.Empty(t, f.data.reports)
}

func TestEmptyAnswerReprompts(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	f.command(t, 100, "start")
	f.command(t, 100, "report")

	f.text(t, 100, "   ")
	session := f.session(t, 100)
	assert.Equal(t, types.StateFeedback, session.State, "blank answers do not advance")
}

func TestConfirmationReplayDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	f.command(t, 100, "start")
	f.command(t, 100, "report")
	f.text(t, 100, "fb")
	f.text(t, 100, "diff")
	f.text(t, 100, "daily")
	f.callback(t, 100, "confirm_report")
	require.Len(t, f.data.reports, 1)

	// The same button pressed again lands in an idle session.
	f.callback(t, 100, "confirm_report")
	assert.Len(t, f.data.reports, 1)
}

func TestConfirmationRestartsFlow(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.addTask("e1", "t1", "Задача")

	f.command(t, 100, "start")
	f.command(t, 100, "report")
	f.callback(t, 100, "task_t1")
	f.text(t, 100, "fb")
	f.text(t, 100, "diff")
	f.text(t, 100, "daily")

	reply := f.callback(t, 100, "restart_report")
	require.NotNil(t, reply)

	session := f.session(t, 100)
	assert.Equal(t, types.StateTaskSelection, session.State)
	assert.Empty(t, session.ContextValue("feedback"))
	assert.Empty(t, f.data.reports)
}

func TestFailedSaveKeepsConfirmation(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.data.appendErr = fmt.Errorf("connection refused")

	f.command(t, 100, "start")
	f.command(t, 100, "report")
	f.text(t, 100, "fb")
	f.text(t, 100, "diff")
	f.text(t, 100, "daily")

	f.callback(t, 100, "confirm_report")
	session := f.session(t, 100)
	assert.Equal(t, types.StateConfirmation, session.State, "a failed save must stay retryable")

	f.data.appendErr = nil
	f.callback(t, 100, "confirm_report")
	require.Len(t, f.data.reports, 1)
}

func TestCorruptSessionStateResetsToIdle(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	require.NoError(t, f.sessions.Put(context.Background(), &types.Session{
		UserID:     100,
		EmployeeID: "e1",
		State:      types.DialogState("ждем_чуда"),
	}))

	reply := f.text(t, 100, "привет")
	require.NotNil(t, reply)

	session := f.session(t, 100)
	assert.Equal(t, types.StateIdle, session.State)
}

func TestLogoutDropsSession(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	f.command(t, 100, "start")
	require.NotNil(t, f.session(t, 100))

	reply, err := f.engine.Logout(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Nil(t, f.session(t, 100))
}

func TestAdminCommandsIgnoredForEmployees(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")

	f.command(t, 100, "start")
	reply := f.command(t, 100, "admin")
	assert.Nil(t, reply, "non-admins get silence, not an error")
}

func TestReportRequiresEmployeeRecord(t *testing.T) {
	f := newFixture(t, 7)

	f.command(t, 7, "start")
	reply := f.command(t, 7, "report")
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "только сотрудникам")
}

func TestAdminBroadcastReachesEveryEmployee(t *testing.T) {
	f := newFixture(t, 7)
	f.addEmployee("e1", 100, "Анна")
	f.addEmployee("e2", 101, "Борис")

	f.command(t, 7, "start")
	f.command(t, 7, "admin")
	f.callback(t, 7, "admin_broadcast")

	reply := f.text(t, 7, "Завтра общее собрание в 10:00")
	require.NotNil(t, reply)

	recs := f.dispatcher.lastCall()
	require.Len(t, recs, 2)
	assert.Equal(t, types.StateIdle, f.session(t, 7).State)
}

func TestAdminSelectionPaginatesAndDispatchesChosen(t *testing.T) {
	f := newFixture(t, 7)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("e%d", i)
		f.addEmployee(id, int64(100+i), fmt.Sprintf("Сотрудник%d", i))
		f.addTask(id, fmt.Sprintf("t%d", i), "Задача")
	}

	f.command(t, 7, "start")
	f.command(t, 7, "admin")

	reply := f.callback(t, 7, "admin_send_tasks")
	require.NotNil(t, reply)
	assert.True(t, reply.Edit)

	// Page 0 shows five candidates plus next-page navigation.
	toggles := 0
	for _, row := range reply.Buttons {
		for _, b := range row {
			if strings.HasPrefix(b.Data, "sel_") {
				toggles++
			}
		}
	}
	assert.Equal(t, 5, toggles)

	for i := 0; i < 5; i++ {
		f.callback(t, 7, fmt.Sprintf("sel_e%d", i))
	}
	f.callback(t, 7, "page_1")
	f.callback(t, 7, "sel_e5")
	f.callback(t, 7, "sel_e6")

	reply = f.callback(t, 7, "send_selected")
	require.NotNil(t, reply)

	recs := f.dispatcher.lastCall()
	require.Len(t, recs, 7)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6"}, ids, "dispatch keeps candidate order")

	session := f.session(t, 7)
	assert.Equal(t, types.StateIdle, session.State)
	assert.Nil(t, session.Selection)
}

func TestAdminSelectionSendWithNothingSelected(t *testing.T) {
	f := newFixture(t, 7)
	f.addEmployee("e1", 100, "Анна")
	f.addTask("e1", "t1", "Задача")

	f.command(t, 7, "start")
	f.command(t, 7, "admin")
	f.callback(t, 7, "admin_send_tasks")

	reply := f.callback(t, 7, "send_selected")
	require.NotNil(t, reply)
	assert.Nil(t, f.dispatcher.lastCall(), "nothing dispatched without a selection")

	session := f.session(t, 7)
	assert.Equal(t, types.StateRecipientSelection, session.State)
}

func TestAdminSelectionCancel(t *testing.T) {
	f := newFixture(t, 7)
	f.addEmployee("e1", 100, "Анна")
	f.addTask("e1", "t1", "Задача")

	f.command(t, 7, "start")
	f.command(t, 7, "admin")
	f.callback(t, 7, "admin_send_tasks")
	f.callback(t, 7, "sel_e1")

	reply := f.callback(t, 7, "cancel_selection")
	require.NotNil(t, reply)

	session := f.session(t, 7)
	assert.Equal(t, types.StateIdle, session.State)
	assert.Nil(t, session.Selection)
	assert.Nil(t, f.dispatcher.lastCall())
}

func TestAdminRemindPendingSkipsSubmitted(t *testing.T) {
	f := newFixture(t, 7)
	f.addEmployee("e1", 100, "Анна")
	f.addEmployee("e2", 101, "Борис")
	f.data.hasReport["e1"] = true

	f.command(t, 7, "start")
	f.command(t, 7, "admin")
	f.callback(t, 7, "admin_remind_pending")

	recs := f.dispatcher.lastCall()
	require.Len(t, recs, 1)
	assert.Equal(t, "e2", recs[0].ID)
}

func TestConcurrentAdvancesForOneUserSerialize(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", 100, "Анна")
	f.command(t, 100, "start")
	f.command(t, 100, "report")

	var wg sync.WaitGroup
	answers := []string{"a", "b", "c", "d"}
	for _, a := range answers {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := f.engine.Advance(context.Background(), 100, Input{
				Kind:   InputText,
				ChatID: 100,
				Text:   text,
			})
			assert.NoError(t, err)
		}(a)
	}
	wg.Wait()

	// However the four inputs interleave, the session lands in exactly
	// one well-defined state of the linear chain.
	session := f.session(t, 100)
	require.NotNil(t, session)
	assert.True(t, session.State.Valid())
}
