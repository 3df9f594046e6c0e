package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// OverdueMember is one member with unpaid dues in an overdue open period.
type OverdueMember struct {
	GroupID   uuid.UUID
	GroupName string
	MemberID  uuid.UUID
	Name      string
	Phone     string
	Due       float64
	Remaining float64
	DueDate   time.Time
}

// ReminderRepository lists members behind on dues across all groups.
type ReminderRepository interface {
	OverdueMembers(ctx context.Context, asOf time.Time) ([]OverdueMember, error)
}

// Notifier delivers a reminder to a member. SMS in production, a log line
// in development.
type Notifier interface {
	RemindContribution(ctx context.Context, m OverdueMember) error
}

// ContributionRemindersJob scans open periods past their due date and sends
// one reminder per pending member. Scheduled via cron.
type ContributionRemindersJob struct {
	Repo     ReminderRepository
	Notifier Notifier
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewContributionRemindersJob constructs the job handler.
func NewContributionRemindersJob(repo ReminderRepository, notifier Notifier, logger *slog.Logger) *ContributionRemindersJob {
	return &ContributionRemindersJob{
		Repo:     repo,
		Notifier: notifier,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewContributionRemindersTask creates the cron task.
func NewContributionRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskContributionReminders, nil, asynq.Queue(QueueDefault))
}

// Handle executes the reminder sweep.
func (j *ContributionRemindersJob) Handle(ctx context.Context, _ *asynq.Task) error {
	members, err := j.Repo.OverdueMembers(ctx, j.clock())
	if err != nil {
		return err
	}
	var sent, failed int
	for _, m := range members {
		if err := j.Notifier.RemindContribution(ctx, m); err != nil {
			failed++
			j.Logger.WarnContext(ctx, "reminder failed",
				slog.String("member_id", m.MemberID.String()),
				slog.Any("error", err))
			continue
		}
		sent++
	}
	j.Logger.InfoContext(ctx, "contribution reminders swept",
		slog.Int("sent", sent),
		slog.Int("failed", failed))
	return nil
}

// LogNotifier writes reminders to the log instead of sending anything.
type LogNotifier struct {
	Logger *slog.Logger
}

// RemindContribution logs the reminder.
func (n LogNotifier) RemindContribution(ctx context.Context, m OverdueMember) error {
	n.Logger.InfoContext(ctx, "contribution reminder",
		slog.String("group", m.GroupName),
		slog.String("member", m.Name),
		slog.Float64("remaining", m.Remaining),
		slog.Time("due_date", m.DueDate))
	return nil
}
