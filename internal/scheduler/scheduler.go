package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/cache"
	"github.com/biamino/team-report-bot/internal/messages"
	"github.com/biamino/team-report-bot/types"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []types.Recipient, build func(types.Recipient) types.Payload) types.FanoutResult
}

type TaskSource interface {
	FetchTasks(ctx context.Context) ([]types.Task, error)
}

// Config holds the firing rules as cron expressions so operators can
// retime triggers without code changes.
type Config struct {
	RemindUnreportedSpec string // daily same-day reminder
	RemindLateSpec       string // daily late reminder for yesterday
	DeadlineWarningSpec  string // hourly deadline check
	TaskSyncSpec         string // external task pull
}

func (c *Config) applyDefaults() {
	if c.RemindUnreportedSpec == "" {
		c.RemindUnreportedSpec = "0 21 * * *"
	}
	if c.RemindLateSpec == "" {
		c.RemindLateSpec = "0 0 * * *"
	}
	if c.DeadlineWarningSpec == "" {
		c.DeadlineWarningSpec = "0 * * * *"
	}
	if c.TaskSyncSpec == "" {
		c.TaskSyncSpec = "@every 10m"
	}
}

// Scheduler owns the trigger registry. Triggers run independently and
// may overlap each other, but never themselves.
type Scheduler struct {
	cron       *cron.Cron
	data       types.DataStore
	dir        *cache.Directory
	dispatcher Dispatcher
	source     TaskSource
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(data types.DataStore, dir *cache.Directory, dispatcher Dispatcher, source TaskSource, cfg Config, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(),
		data:       data,
		dir:        dir,
		dispatcher: dispatcher,
		source:     source,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() error {
	entries := []struct {
		spec    string
		trigger *Trigger
	}{
		{s.cfg.RemindUnreportedSpec, NewTrigger("remind_unreported", s.RemindUnreported, s.logger)},
		{s.cfg.RemindLateSpec, NewTrigger("remind_late", s.RemindLate, s.logger)},
		{s.cfg.DeadlineWarningSpec, NewTrigger("deadline_warning", s.DeadlineWarning, s.logger)},
	}
	if s.source != nil {
		entries = append(entries, struct {
			spec    string
			trigger *Trigger
		}{s.cfg.TaskSyncSpec, NewTrigger("task_sync", s.SyncTasks, s.logger)})
	}

	for _, e := range entries {
		trig := e.trigger
		if _, err := s.cron.AddFunc(e.spec, func() {
			trig.Fire(s.ctx)
		}); err != nil {
			return err
		}
		s.logger.Info("trigger registered",
			zap.String("trigger", trig.Name()),
			zap.String("spec", e.spec))
	}

	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts new firings and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("scheduler stopped")
}

// RemindUnreported nudges every employee who still has a task without
// today's report.
func (s *Scheduler) RemindUnreported(ctx context.Context) {
	today := s.now()
	emps, err := s.dir.Employees(ctx)
	if err != nil {
		s.logger.Error("remind_unreported: employee list failed", zap.Error(err))
		return
	}

	var recipients []types.Recipient
	for _, emp := range emps {
		tasks, err := s.dir.TasksWithoutReport(ctx, emp.ID, today)
		if err != nil {
			s.logger.Error("remind_unreported: task lookup failed",
				zap.String("employee_id", emp.ID), zap.Error(err))
			continue
		}
		if len(tasks) > 0 {
			recipients = append(recipients, types.Recipient{ID: emp.ID, TelegramID: emp.TelegramID})
		}
	}
	if len(recipients) == 0 {
		return
	}

	payload := types.Payload{Text: messages.RemindToday()}
	result := s.dispatcher.Dispatch(ctx, recipients, func(types.Recipient) types.Payload {
		return payload
	})
	s.logger.Info("remind_unreported done",
		zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
}

// RemindLate chases employees who never submitted yesterday's report.
func (s *Scheduler) RemindLate(ctx context.Context) {
	yesterday := s.now().AddDate(0, 0, -1)
	emps, err := s.dir.EmployeesWithoutReport(ctx, yesterday)
	if err != nil {
		s.logger.Error("remind_late: lookup failed", zap.Error(err))
		return
	}
	if len(emps) == 0 {
		return
	}

	recipients := make([]types.Recipient, 0, len(emps))
	for _, emp := range emps {
		recipients = append(recipients, types.Recipient{ID: emp.ID, TelegramID: emp.TelegramID})
	}

	payload := types.Payload{Text: messages.RemindLate()}
	result := s.dispatcher.Dispatch(ctx, recipients, func(types.Recipient) types.Payload {
		return payload
	})
	s.logger.Info("remind_late done",
		zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
}

// DeadlineWarning warns owners of tasks whose deadline falls within the
// hour twelve hours from now.
func (s *Scheduler) DeadlineWarning(ctx context.Context) {
	from := s.now().Add(12 * time.Hour).Truncate(time.Hour)
	to := from.Add(time.Hour)

	tasks, err := s.data.ListTasksWithDeadlineBetween(ctx, from, to)
	if err != nil {
		s.logger.Error("deadline_warning: task query failed", zap.Error(err))
		return
	}
	if len(tasks) == 0 {
		return
	}

	byOwner := make(map[string][]string)
	var order []string
	for _, t := range tasks {
		if _, seen := byOwner[t.EmployeeID]; !seen {
			order = append(order, t.EmployeeID)
		}
		byOwner[t.EmployeeID] = append(byOwner[t.EmployeeID], t.Description)
	}

	recipients := make([]types.Recipient, 0, len(order))
	payloads := make(map[string]types.Payload, len(order))
	for _, employeeID := range order {
		emp, err := s.dir.EmployeeByID(ctx, employeeID)
		if err != nil || emp == nil {
			s.logger.Warn("deadline_warning: unknown task owner",
				zap.String("employee_id", employeeID))
			continue
		}
		recipients = append(recipients, types.Recipient{ID: emp.ID, TelegramID: emp.TelegramID})
		payloads[emp.ID] = types.Payload{Text: messages.DeadlineWarning(byOwner[employeeID])}
	}
	if len(recipients) == 0 {
		return
	}

	result := s.dispatcher.Dispatch(ctx, recipients, func(r types.Recipient) types.Payload {
		return payloads[r.ID]
	})
	s.logger.Info("deadline_warning done",
		zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
}

// SyncTasks pulls the external task list and upserts it into the local
// store. This is a data-sync job, not a notification one.
func (s *Scheduler) SyncTasks(ctx context.Context) {
	tasks, err := s.source.FetchTasks(ctx)
	if err != nil {
		s.logger.Error("task_sync: fetch failed", zap.Error(err))
		return
	}

	today := s.now()
	upserted := 0
	affected := make(map[string]bool)
	for _, t := range tasks {
		if err := s.data.UpsertTask(ctx, t); err != nil {
			s.logger.Error("task_sync: upsert failed",
				zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		upserted++
		affected[t.EmployeeID] = true
	}

	for employeeID := range affected {
		s.dir.InvalidateTasks(employeeID, today)
	}

	s.logger.Info("task_sync done",
		zap.Int("fetched", len(tasks)),
		zap.Int("upserted", upserted))
}
