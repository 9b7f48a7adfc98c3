package types

type DialogState string

const (
	StateIdle               DialogState = "idle"
	StateTaskSelection      DialogState = "await_task_selection"
	StateFeedback           DialogState = "await_feedback"
	StateDifficulties       DialogState = "await_difficulties"
	StateDailyReport        DialogState = "await_daily_report"
	StateConfirmation       DialogState = "await_confirmation"
	StateBroadcastContent   DialogState = "await_broadcast_content"
	StateRecipientSelection DialogState = "await_recipient_selection"
)

func (s DialogState) Valid() bool {
	switch s {
	case StateIdle, StateTaskSelection, StateFeedback, StateDifficulties,
		StateDailyReport, StateConfirmation, StateBroadcastContent, StateRecipientSelection:
		return true
	}
	return false
}

type DeliveryErrorKind string

const (
	DeliveryTransient DeliveryErrorKind = "transient"
	DeliveryPermanent DeliveryErrorKind = "permanent"
)
