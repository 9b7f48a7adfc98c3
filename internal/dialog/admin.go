package dialog

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/messages"
	"github.com/biamino/team-report-bot/types"
)

const dateFormat = "02.01.2006"

func (e *Engine) adminPanel(ctx context.Context, session *types.Session) (*Reply, error) {
	// Entering the panel abandons whatever flow was in progress.
	session.State = types.StateIdle
	session.ClearFlow()
	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}

	return &Reply{
		Text: messages.AdminPanel(),
		Buttons: [][]Button{
			{{Label: messages.AdminSendTasksButton(), Data: cbAdminSendTasks}},
			{
				{Label: messages.AdminRemindPendingButton(), Data: cbAdminRemindPend},
				{Label: messages.AdminRemindAllButton(), Data: cbAdminRemindAll},
			},
			{{Label: messages.AdminSendAllTasksButton(), Data: cbAdminAllTasks}},
			{{Label: messages.AdminBroadcastButton(), Data: cbAdminBroadcast}},
		},
	}, nil
}

func (e *Engine) handleAdminMenu(ctx context.Context, session *types.Session, data string) (*Reply, error) {
	today := e.now()

	switch data {
	case cbAdminSendTasks:
		candidates, err := e.employeesWithOpenTasks(ctx)
		if err != nil {
			e.logger.Error("admin send tasks: candidate lookup failed", zap.Error(err))
			return &Reply{Text: messages.ErrorDefault(), Edit: true}, nil
		}
		if len(candidates) == 0 {
			return &Reply{Text: messages.NoEmployeesWithTasks(today.Format(dateFormat)), Edit: true}, nil
		}

		ids := make([]string, 0, len(candidates))
		for _, emp := range candidates {
			ids = append(ids, emp.ID)
		}
		session.State = types.StateRecipientSelection
		session.Selection = types.NewSelectionSet(ids)
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return e.selectionReply(ctx, session), nil

	case cbAdminRemindPend:
		emps, err := e.dir.EmployeesWithoutReport(ctx, today)
		if err != nil {
			e.logger.Error("admin remind pending failed", zap.Error(err))
			return &Reply{Text: messages.ErrorDefault(), Edit: true}, nil
		}
		result := e.dispatcher.Dispatch(ctx, recipients(emps), uniformPayload(messages.RemindPending()))
		return &Reply{Text: messages.FanoutSummary("Напоминания отправлены", result.Sent, result.Failed), Edit: true}, nil

	case cbAdminRemindAll:
		emps, err := e.dir.Employees(ctx)
		if err != nil {
			e.logger.Error("admin remind all failed", zap.Error(err))
			return &Reply{Text: messages.ErrorDefault(), Edit: true}, nil
		}
		result := e.dispatcher.Dispatch(ctx, recipients(emps), uniformPayload(messages.RemindAll()))
		return &Reply{Text: messages.FanoutSummary("Напоминания отправлены", result.Sent, result.Failed), Edit: true}, nil

	case cbAdminAllTasks:
		candidates, err := e.employeesWithOpenTasks(ctx)
		if err != nil {
			e.logger.Error("admin send all tasks failed", zap.Error(err))
			return &Reply{Text: messages.ErrorDefault(), Edit: true}, nil
		}
		result := e.sendTaskLists(ctx, candidates)
		return &Reply{Text: messages.FanoutSummary("Отправка задач завершена!", result.Sent, result.Failed), Edit: true}, nil

	case cbAdminBroadcast:
		session.State = types.StateBroadcastContent
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return &Reply{Text: messages.BroadcastPrompt(), Edit: true}, nil
	}

	return &Reply{Text: messages.NotUnderstood(true)}, nil
}

func (e *Engine) handleBroadcastContent(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	if in.Kind != InputText {
		return &Reply{Text: messages.OutOfBand()}, nil
	}
	if strings.TrimSpace(in.Text) == "" && in.Media == nil {
		return &Reply{Text: messages.BroadcastPrompt()}, nil
	}

	emps, err := e.dir.Employees(ctx)
	if err != nil {
		e.logger.Error("broadcast: employee list failed", zap.Error(err))
		return &Reply{Text: messages.ErrorDefault()}, nil
	}

	payload := types.Payload{Text: in.Text, Media: in.Media}
	result := e.dispatcher.Dispatch(ctx, recipients(emps), func(types.Recipient) types.Payload {
		return payload
	})

	session.State = types.StateIdle
	session.ClearFlow()
	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	return &Reply{Text: messages.FanoutSummary("Рассылка завершена!", result.Sent, result.Failed)}, nil
}

func (e *Engine) handleRecipientSelection(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	if in.Kind != InputCallback || session.Selection == nil {
		return &Reply{Text: messages.OutOfBand()}, nil
	}
	sel := session.Selection

	switch {
	case strings.HasPrefix(in.Callback, cbTogglePrefix):
		sel.Toggle(strings.TrimPrefix(in.Callback, cbTogglePrefix))
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return e.selectionReply(ctx, session), nil

	case strings.HasPrefix(in.Callback, cbPagePrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(in.Callback, cbPagePrefix))
		if err != nil || page < 0 {
			return &Reply{Text: messages.OutOfBand()}, nil
		}
		sel.Page = page
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return e.selectionReply(ctx, session), nil

	case in.Callback == cbSelectAll:
		sel.SelectAll()
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return e.selectionReply(ctx, session), nil

	case in.Callback == cbSendSelected:
		selected := sel.SelectedIDs()
		if len(selected) == 0 {
			// Not a valid input with an empty selection; the keyboard
			// does not even offer the button, but a stale one might.
			return &Reply{Text: messages.NothingSelected()}, nil
		}

		byID, err := e.employeesByID(ctx)
		if err != nil {
			e.logger.Error("send to selected: employee list failed", zap.Error(err))
			return &Reply{Text: messages.ErrorDefault(), Edit: true}, nil
		}
		targets := make([]types.Employee, 0, len(selected))
		for _, id := range selected {
			if emp, ok := byID[id]; ok {
				targets = append(targets, emp)
			}
		}
		result := e.sendTaskLists(ctx, targets)

		session.State = types.StateIdle
		session.ClearFlow()
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return &Reply{Text: messages.FanoutSummary("Отправка задач завершена!", result.Sent, result.Failed), Edit: true}, nil

	case in.Callback == cbCancelSelection:
		session.State = types.StateIdle
		session.ClearFlow()
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		return &Reply{Text: messages.SelectionCancelled(), Edit: true}, nil
	}

	return &Reply{Text: messages.OutOfBand()}, nil
}

// selectionReply renders the paginated multi-select keyboard for the
// session's current SelectionSet.
func (e *Engine) selectionReply(ctx context.Context, session *types.Session) *Reply {
	sel := session.Selection
	byID, err := e.employeesByID(ctx)
	if err != nil {
		e.logger.Error("selection keyboard: employee list failed", zap.Error(err))
		return &Reply{Text: messages.ErrorDefault(), Edit: true}
	}

	start := sel.Page * e.pageSize
	if start > len(sel.Candidates) {
		start = len(sel.Candidates)
	}
	end := start + e.pageSize
	if end > len(sel.Candidates) {
		end = len(sel.Candidates)
	}

	var buttons [][]Button
	for _, id := range sel.Candidates[start:end] {
		name := id
		if emp, ok := byID[id]; ok {
			name = emp.FullName()
		}
		label := "◻️ " + name
		if sel.Selected[id] {
			label = "✅ " + name
		}
		buttons = append(buttons, []Button{{Label: label, Data: cbTogglePrefix + id}})
	}

	var nav []Button
	if sel.Page > 0 {
		nav = append(nav, Button{Label: messages.PrevPageButton(), Data: cbPagePrefix + strconv.Itoa(sel.Page-1)})
	}
	if end < len(sel.Candidates) {
		nav = append(nav, Button{Label: messages.NextPageButton(), Data: cbPagePrefix + strconv.Itoa(sel.Page+1)})
	}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}

	var controls []Button
	if len(sel.Selected) > 0 {
		controls = append(controls, Button{Label: messages.SendToSelectedButton(), Data: cbSendSelected})
	}
	controls = append(controls,
		Button{Label: messages.SelectAllButton(), Data: cbSelectAll},
		Button{Label: messages.CancelButton(), Data: cbCancelSelection},
	)
	for i := 0; i < len(controls); i += 2 {
		row := controls[i:]
		if len(row) > 2 {
			row = row[:2]
		}
		buttons = append(buttons, row)
	}

	return &Reply{
		Text:    messages.SelectionHeader(e.now().Format(dateFormat), len(sel.Candidates), len(sel.Selected), sel.Page),
		Buttons: buttons,
		Edit:    true,
	}
}

func (e *Engine) stats(ctx context.Context) (*Reply, error) {
	today := e.now()
	emps, err := e.dir.Employees(ctx)
	if err != nil {
		return &Reply{Text: messages.ErrorDefault()}, nil
	}
	missing, err := e.dir.EmployeesWithoutReport(ctx, today)
	if err != nil {
		return &Reply{Text: messages.ErrorDefault()}, nil
	}

	names := make([]string, 0, len(missing))
	for _, emp := range missing {
		names = append(names, emp.FullName())
	}
	return &Reply{Text: messages.Stats(today.Format(dateFormat), len(emps), len(emps)-len(missing), names)}, nil
}

// employeesWithOpenTasks returns employees with at least one task
// lacking today's report, in directory order.
func (e *Engine) employeesWithOpenTasks(ctx context.Context) ([]types.Employee, error) {
	emps, err := e.dir.Employees(ctx)
	if err != nil {
		return nil, err
	}
	today := e.now()

	var out []types.Employee
	for _, emp := range emps {
		tasks, err := e.dir.TasksWithoutReport(ctx, emp.ID, today)
		if err != nil {
			return nil, err
		}
		if len(tasks) > 0 {
			out = append(out, emp)
		}
	}
	return out, nil
}

// sendTaskLists dispatches a personalized open-task list to each
// employee.
func (e *Engine) sendTaskLists(ctx context.Context, emps []types.Employee) types.FanoutResult {
	today := e.now()
	payloads := make(map[string]types.Payload, len(emps))
	recs := make([]types.Recipient, 0, len(emps))

	for _, emp := range emps {
		tasks, err := e.dir.TasksWithoutReport(ctx, emp.ID, today)
		if err != nil {
			e.logger.Error("task list lookup failed",
				zap.String("employee_id", emp.ID), zap.Error(err))
			continue
		}
		descriptions := make([]string, 0, len(tasks))
		for _, t := range tasks {
			descriptions = append(descriptions, t.Description)
		}
		recs = append(recs, types.Recipient{ID: emp.ID, TelegramID: emp.TelegramID})
		payloads[emp.ID] = types.Payload{Text: messages.TasksForEmployee(emp.FullName(), descriptions)}
	}

	return e.dispatcher.Dispatch(ctx, recs, func(r types.Recipient) types.Payload {
		return payloads[r.ID]
	})
}

func (e *Engine) employeesByID(ctx context.Context) (map[string]types.Employee, error) {
	emps, err := e.dir.Employees(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]types.Employee, len(emps))
	for _, emp := range emps {
		byID[emp.ID] = emp
	}
	return byID, nil
}

func recipients(emps []types.Employee) []types.Recipient {
	out := make([]types.Recipient, 0, len(emps))
	for _, emp := range emps {
		out = append(out, types.Recipient{ID: emp.ID, TelegramID: emp.TelegramID})
	}
	return out
}

func uniformPayload(text string) func(types.Recipient) types.Payload {
	payload := types.Payload{Text: text}
	return func(types.Recipient) types.Payload {
		return payload
	}
}
