package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/carepoint/carepoint/internal/assignments"
	jobmetrics "github.com/carepoint/carepoint/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssignmentChanged notifies an identity that its role binding changed.
	TaskAssignmentChanged = "access:assignment_changed"

	notifyJobName = "access_notify"
)

// AssignmentChangedPayload is the queued form of an assignments.AssignmentChange.
type AssignmentChangedPayload struct {
	IdentityKey string    `json:"identity_key"`
	Action      string    `json:"action"`
	OldRole     string    `json:"old_role,omitempty"`
	NewRole     string    `json:"new_role,omitempty"`
	OldStatus   string    `json:"old_status,omitempty"`
	NewStatus   string    `json:"new_status,omitempty"`
	ChangedBy   string    `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
}

func payloadFromChange(c assignments.AssignmentChange) AssignmentChangedPayload {
	return AssignmentChangedPayload{
		IdentityKey: c.IdentityKey,
		Action:      string(c.Action),
		OldRole:     string(c.OldRole),
		NewRole:     string(c.NewRole),
		OldStatus:   string(c.OldStatus),
		NewStatus:   string(c.NewStatus),
		ChangedBy:   c.ChangedBy,
		ChangedAt:   c.ChangedAt,
	}
}

// NewAssignmentChangedTask constructs an Asynq task.
func NewAssignmentChangedTask(change assignments.AssignmentChange) (*asynq.Task, error) {
	if change.IdentityKey == "" {
		return nil, fmt.Errorf("jobs: assignment change without identity key")
	}
	data, err := json.Marshal(payloadFromChange(change))
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentChanged, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Mailer delivers plain-text mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotifyHandler processes TaskAssignmentChanged tasks.
type NotifyHandler struct {
	mailer  Mailer
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewNotifyHandler constructs a NotifyHandler. A nil mailer logs and skips.
func NewNotifyHandler(mailer Mailer, metrics *jobmetrics.Metrics, logger *slog.Logger) *NotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyHandler{mailer: mailer, metrics: metrics, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *NotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload AssignmentChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if payload.IdentityKey == "" {
		return fmt.Errorf("%s without identity key: %w", t.Type(), asynq.SkipRetry)
	}

	tracker := h.metrics.Track(notifyJobName)
	if h.mailer == nil {
		h.logger.Info("assignment change notice skipped", slog.String("identity", payload.IdentityKey), slog.String("action", payload.Action))
		h.metrics.NotificationSent(payload.Action, "skipped")
		return tracker.End(nil)
	}
	subject, body := renderNotice(payload)
	if err := h.mailer.Send(ctx, payload.IdentityKey, subject, body); err != nil {
		h.metrics.NotificationSent(payload.Action, "failed")
		return tracker.End(fmt.Errorf("send notice to %s: %w", payload.IdentityKey, err))
	}
	h.metrics.NotificationSent(payload.Action, "sent")
	h.logger.Info("assignment change notice sent", slog.String("identity", payload.IdentityKey), slog.String("action", payload.Action))
	return tracker.End(nil)
}

func renderNotice(p AssignmentChangedPayload) (string, string) {
	var b strings.Builder
	subject := "Your CarePoint access has changed"
	switch assignments.Action(p.Action) {
	case assignments.ActionAssign:
		fmt.Fprintf(&b, "You have been given the %s role.\n", p.NewRole)
	case assignments.ActionChangeRole:
		fmt.Fprintf(&b, "Your role changed from %s to %s.\n", p.OldRole, p.NewRole)
	case assignments.ActionSetStatus:
		fmt.Fprintf(&b, "Your access is now %s.\n", p.NewStatus)
	case assignments.ActionRevoke:
		subject = "Your CarePoint access was revoked"
		b.WriteString("Your access to CarePoint has been removed.\n")
	default:
		fmt.Fprintf(&b, "Your access record was updated (%s).\n", p.Action)
	}
	fmt.Fprintf(&b, "Changed by %s at %s.\n", p.ChangedBy, p.ChangedAt.UTC().Format(time.RFC1123))
	b.WriteString("Sign out and sign in again for the change to take effect everywhere.\n")
	return subject, b.String()
}
