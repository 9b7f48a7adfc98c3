package dialog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/messages"
	"github.com/biamino/team-report-bot/types"
)

// startReport enters the report flow. With open tasks the user picks
// one (or "general report"); with none the flow skips straight to the
// feedback question as a general report.
func (e *Engine) startReport(ctx context.Context, session *types.Session) (*Reply, error) {
	if session.EmployeeID == "" {
		return &Reply{Text: messages.ReportOnlyForEmployees()}, nil
	}

	today := e.now()
	tasks, err := e.dir.TasksWithoutReport(ctx, session.EmployeeID, today)
	if err != nil {
		e.logger.Error("list open tasks failed",
			zap.String("employee_id", session.EmployeeID), zap.Error(err))
		return &Reply{Text: messages.ErrorDefault()}, nil
	}

	session.ClearFlow()

	if len(tasks) == 0 {
		has, err := e.data.HasReport(ctx, session.EmployeeID, today)
		if err != nil {
			e.logger.Error("report check failed",
				zap.String("employee_id", session.EmployeeID), zap.Error(err))
			return &Reply{Text: messages.ErrorDefault()}, nil
		}
		if has {
			session.State = types.StateIdle
			if err := e.sessions.Put(ctx, session); err != nil {
				return nil, err
			}
			return &Reply{Text: messages.ReportAlreadySubmitted()}, nil
		}

		// No open tasks: general report, no selection step.
		session.State = types.StateFeedback
		session.SetContext(ctxTaskID, "")
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return &Reply{Text: messages.AskFeedback()}, nil
	}

	offered := make([]string, 0, len(tasks))
	buttons := make([][]Button, 0, len(tasks)+1)
	for _, t := range tasks {
		offered = append(offered, t.ID)
		buttons = append(buttons, []Button{{Label: t.Description, Data: cbTaskPrefix + t.ID}})
	}
	buttons = append(buttons, []Button{{Label: messages.GeneralReportOption(), Data: cbTaskGeneral}})

	session.State = types.StateTaskSelection
	session.SetContext(ctxOfferedTasks, strings.Join(offered, ","))
	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	return &Reply{Text: messages.ChooseTask(), Buttons: buttons}, nil
}

func (e *Engine) handleTaskSelection(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	if in.Kind != InputCallback || !strings.HasPrefix(in.Callback, cbTaskPrefix) {
		return &Reply{Text: messages.OutOfBand()}, nil
	}

	taskID := ""
	if in.Callback != cbTaskGeneral {
		taskID = strings.TrimPrefix(in.Callback, cbTaskPrefix)
		if !containsID(session.ContextValue(ctxOfferedTasks), taskID) {
			return &Reply{Text: messages.OutOfBand()}, nil
		}
	}

	session.State = types.StateFeedback
	session.SetContext(ctxTaskID, taskID)
	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	return &Reply{Text: messages.AskFeedback(), Edit: true}, nil
}

// handleTextStep covers the two middle questions of the linear chain:
// store a non-empty answer under field and move on with the next prompt.
func (e *Engine) handleTextStep(ctx context.Context, session *types.Session, in Input, field, emptyPrompt string, next types.DialogState, nextPrompt string) (*Reply, error) {
	if in.Kind != InputText {
		return &Reply{Text: messages.OutOfBand()}, nil
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return &Reply{Text: emptyPrompt}, nil
	}

	session.SetContext(field, text)
	session.State = next
	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	return &Reply{Text: nextPrompt}, nil
}

func (e *Engine) handleDailyReport(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	if in.Kind != InputText {
		return &Reply{Text: messages.OutOfBand()}, nil
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return &Reply{Text: messages.EmptyDailyReport()}, nil
	}

	session.SetContext(ctxDailyReport, text)
	session.State = types.StateConfirmation
	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}

	return &Reply{
		Text: messages.Confirmation(
			session.ContextValue(ctxFeedback),
			session.ContextValue(ctxDifficulties),
			session.ContextValue(ctxDailyReport),
		),
		Buttons: [][]Button{{
			{Label: messages.ConfirmButton(), Data: cbConfirmReport},
			{Label: messages.RestartButton(), Data: cbRestartReport},
		}},
	}, nil
}

func (e *Engine) handleConfirmation(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	if in.Kind != InputCallback {
		return &Reply{Text: messages.OutOfBand()}, nil
	}

	switch in.Callback {
	case cbConfirmReport:
		report := types.Report{
			EmployeeID:   session.EmployeeID,
			TaskID:       session.ContextValue(ctxTaskID),
			Feedback:     session.ContextValue(ctxFeedback),
			Difficulties: session.ContextValue(ctxDifficulties),
			DailyReport:  session.ContextValue(ctxDailyReport),
			SubmittedAt:  e.now(),
		}
		if err := e.data.AppendReport(ctx, report); err != nil {
			// The session stays in confirmation so the user can retry.
			e.logger.Error("report save failed",
				zap.String("employee_id", session.EmployeeID), zap.Error(err))
			return &Reply{Text: messages.ReportSaveFailed(), Edit: true}, nil
		}

		e.dir.InvalidateReportDay(session.EmployeeID, report.SubmittedAt)

		session.State = types.StateIdle
		session.ClearFlow()
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		e.logger.Info("report saved",
			zap.String("employee_id", report.EmployeeID),
			zap.String("task_id", report.TaskID))
		return &Reply{Text: messages.ReportSaved(), Edit: true}, nil

	case cbRestartReport:
		session.ClearFlow()
		return e.startReport(ctx, session)
	}

	return &Reply{Text: messages.OutOfBand()}, nil
}

func containsID(csv, id string) bool {
	if id == "" {
		return false
	}
	for _, part := range strings.Split(csv, ",") {
		if part == id {
			return true
		}
	}
	return false
}
