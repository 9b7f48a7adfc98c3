package types

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Employee struct {
	ID         string    `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e Employee) FullName() string {
	return strings.TrimSpace(e.LastName + " " + e.FirstName)
}

type Task struct {
	ID          string     `json:"id"`
	EmployeeID  string     `json:"employee_id"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Report is immutable once appended. An empty TaskID means a general
// report not tied to a particular task.
type Report struct {
	EmployeeID   string
	TaskID       string
	Feedback     string
	Difficulties string
	DailyReport  string
	SubmittedAt  time.Time
}

// Payload is what the transport delivers: plain text or an opaque media
// attachment passed through unmodified.
type Payload struct {
	Text  string
	Media *MediaAttachment
}

type MediaAttachment struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Recipient of a fan-out dispatch. TelegramID == 0 means the employee
// has no linked transport identity and is counted failed up front.
type Recipient struct {
	ID         string
	TelegramID int64
}

type FanoutResult struct {
	Sent      int
	Failed    int
	FailedIDs []string
}

// DeliveryError classifies a transport failure so the fan-out engine
// knows whether a retry has any chance of succeeding.
type DeliveryError struct {
	Kind DeliveryErrorKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery error: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func NewTransientError(err error) *DeliveryError {
	return &DeliveryError{Kind: DeliveryTransient, Err: err}
}

func NewPermanentError(err error) *DeliveryError {
	return &DeliveryError{Kind: DeliveryPermanent, Err: err}
}

type Transport interface {
	SendMessage(ctx context.Context, chatID int64, payload Payload) error
}

type SessionStore interface {
	// Lock serializes transitions for one user. The returned func
	// releases the lock; different users never contend.
	Lock(userID int64) func()
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, userID int64) error
}

type DataStore interface {
	ListEmployees(ctx context.Context) ([]Employee, error)
	GetEmployeeByTelegramID(ctx context.Context, telegramID int64) (*Employee, error)
	ListTasksWithoutReport(ctx context.Context, employeeID string, day time.Time) ([]Task, error)
	ListEmployeesWithoutReport(ctx context.Context, day time.Time) ([]Employee, error)
	ListTasksWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]Task, error)
	HasReport(ctx context.Context, employeeID string, day time.Time) (bool, error)
	AppendReport(ctx context.Context, report Report) error
	UpsertTask(ctx context.Context, task Task) error
}
