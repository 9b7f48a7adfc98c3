package dialog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/cache"
	"github.com/biamino/team-report-bot/internal/messages"
	"github.com/biamino/team-report-bot/types"
)

const defaultPageSize = 5

// Engine drives the per-user conversation state machine. Every Advance
// call runs under the session store's per-user lock, so transitions for
// one user never interleave.
type Engine struct {
	sessions   types.SessionStore
	data       types.DataStore
	dir        *cache.Directory
	dispatcher Dispatcher
	admins     map[int64]bool
	pageSize   int
	now        func() time.Time
	logger     *zap.Logger
}

type Config struct {
	AdminIDs []int64
	PageSize int
	Now      func() time.Time
}

func NewEngine(sessions types.SessionStore, data types.DataStore, dir *cache.Directory, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Engine {
	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = true
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		sessions:   sessions,
		data:       data,
		dir:        dir,
		dispatcher: dispatcher,
		admins:     admins,
		pageSize:   pageSize,
		now:        now,
		logger:     logger,
	}
}

// Advance applies one input to the user's session and returns the reply
// to send. A nil reply with a nil error means the input is deliberately
// ignored (e.g. /admin from a non-admin).
func (e *Engine) Advance(ctx context.Context, userID int64, in Input) (*Reply, error) {
	unlock := e.sessions.Lock(userID)
	defer unlock()

	session, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session for %d: %w", userID, err)
	}

	if session == nil {
		return e.authenticate(ctx, userID, in)
	}

	if !session.State.Valid() {
		e.logger.Warn("unknown session state, resetting to idle",
			zap.Int64("user_id", userID),
			zap.String("state", string(session.State)))
		session.State = types.StateIdle
		session.ClearFlow()
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
	}

	if in.Kind == InputCommand {
		return e.handleCommand(ctx, session, in)
	}

	switch session.State {
	case types.StateIdle:
		return e.handleIdle(ctx, session, in)
	case types.StateTaskSelection:
		return e.handleTaskSelection(ctx, session, in)
	case types.StateFeedback:
		return e.handleTextStep(ctx, session, in, ctxFeedback, messages.EmptyFeedback(), types.StateDifficulties, messages.AskDifficulties())
	case types.StateDifficulties:
		return e.handleTextStep(ctx, session, in, ctxDifficulties, messages.EmptyDifficulties(), types.StateDailyReport, messages.AskDailyReport())
	case types.StateDailyReport:
		return e.handleDailyReport(ctx, session, in)
	case types.StateConfirmation:
		return e.handleConfirmation(ctx, session, in)
	case types.StateBroadcastContent:
		return e.handleBroadcastContent(ctx, session, in)
	case types.StateRecipientSelection:
		return e.handleRecipientSelection(ctx, session, in)
	}

	return &Reply{Text: messages.ErrorDefault()}, nil
}

// Logout drops the user's session. It runs under the same per-user
// lock, so an in-flight transition finishes before the session is gone.
func (e *Engine) Logout(ctx context.Context, userID int64) (*Reply, error) {
	unlock := e.sessions.Lock(userID)
	defer unlock()

	if err := e.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return &Reply{Text: messages.LogoutDone()}, nil
}

// authenticate resolves an unknown user by telegram id: allowlisted
// admins pass without an employee record, employees are matched through
// the cached directory, everyone else is turned away without a session.
func (e *Engine) authenticate(ctx context.Context, userID int64, in Input) (*Reply, error) {
	session := &types.Session{
		UserID: userID,
		ChatID: in.ChatID,
		State:  types.StateIdle,
	}

	emp, err := e.dir.EmployeeByTelegramID(ctx, userID)
	if err != nil {
		e.logger.Error("auth lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return &Reply{Text: messages.ErrorDefault()}, nil
	}
	if emp != nil {
		session.EmployeeID = emp.ID
	}

	if e.admins[userID] {
		session.IsAdmin = true
		if err := e.sessions.Put(ctx, session); err != nil {
			return nil, err
		}
		e.logger.Info("admin authenticated", zap.Int64("user_id", userID))
		return &Reply{Text: messages.AuthAdmin()}, nil
	}

	if emp == nil {
		e.logger.Warn("unknown user rejected", zap.Int64("user_id", userID))
		return &Reply{Text: messages.AuthUnknown()}, nil
	}

	if err := e.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	e.logger.Info("employee authenticated",
		zap.Int64("user_id", userID),
		zap.String("employee_id", emp.ID))
	return &Reply{Text: messages.AuthEmployee(emp.FullName())}, nil
}

func (e *Engine) handleCommand(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	switch in.Command {
	case "start":
		name := ""
		if emp := e.sessionEmployee(ctx, session); emp != nil {
			name = emp.FullName()
		}
		return &Reply{Text: messages.AlreadyAuthorized(name, session.IsAdmin)}, nil
	case "help":
		return &Reply{Text: messages.Help()}, nil
	case "report":
		return e.startReport(ctx, session)
	case "admin":
		if !session.IsAdmin {
			return nil, nil
		}
		return e.adminPanel(ctx, session)
	case "stats":
		if !session.IsAdmin {
			return nil, nil
		}
		return e.stats(ctx)
	}
	return &Reply{Text: messages.NotUnderstood(session.IsAdmin)}, nil
}

func (e *Engine) handleIdle(ctx context.Context, session *types.Session, in Input) (*Reply, error) {
	if in.Kind == InputCallback && session.IsAdmin {
		return e.handleAdminMenu(ctx, session, in.Callback)
	}
	return &Reply{Text: messages.NotUnderstood(session.IsAdmin)}, nil
}

func (e *Engine) sessionEmployee(ctx context.Context, session *types.Session) *types.Employee {
	if session.EmployeeID == "" {
		return nil
	}
	emp, err := e.dir.EmployeeByID(ctx, session.EmployeeID)
	if err != nil {
		return nil
	}
	return emp
}
