package dialog

import (
	"context"

	"github.com/biamino/team-report-bot/types"
)

type InputKind string

const (
	InputCommand  InputKind = "command"
	InputText     InputKind = "text"
	InputCallback InputKind = "callback"
)

// Input is one user action delivered to the engine: a slash command,
// free-form content (text or media with a caption), or a button press.
type Input struct {
	Kind     InputKind
	ChatID   int64
	Command  string
	Text     string
	Callback string
	Media    *types.MediaAttachment
}

type Button struct {
	Label string
	Data  string
}

// Reply is the outbound message produced by a transition. Edit means
// the message carrying the pressed button should be edited in place
// instead of sending a new one. A nil Reply means stay silent.
type Reply struct {
	Text    string
	Buttons [][]Button
	Edit    bool
}

// Dispatcher runs a fan-out job and returns its accounting.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []types.Recipient, build func(types.Recipient) types.Payload) types.FanoutResult
}

// context field names for values collected during the report flow
const (
	ctxTaskID       = "selected_task_id"
	ctxOfferedTasks = "offered_tasks"
	ctxFeedback     = "feedback"
	ctxDifficulties = "difficulties"
	ctxDailyReport  = "daily_report"
)

// callback data exchanged with the inline keyboards
const (
	cbTaskPrefix      = "task_"
	cbTaskGeneral     = "task_general"
	cbConfirmReport   = "confirm_report"
	cbRestartReport   = "restart_report"
	cbTogglePrefix    = "sel_"
	cbPagePrefix      = "page_"
	cbSelectAll       = "select_all"
	cbSendSelected    = "send_selected"
	cbCancelSelection = "cancel_selection"
	cbAdminSendTasks  = "admin_send_tasks"
	cbAdminRemindPend = "admin_remind_pending"
	cbAdminRemindAll  = "admin_remind_all"
	cbAdminAllTasks   = "admin_send_all_tasks"
	cbAdminBroadcast  = "admin_broadcast"
)
