package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportSnapshot persists a period's contribution report after close.
	TaskReportSnapshot = "report:snapshot"
	// TaskContributionReminders nudges members with dues in overdue open periods.
	TaskContributionReminders = "contribution:reminders"
)

// ReportSnapshotPayload names the period whose report should be stored.
type ReportSnapshotPayload struct {
	PeriodID string `json:"periodId"`
}

// NewReportSnapshotTask constructs an Asynq task.
func NewReportSnapshotTask(periodID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ReportSnapshotPayload{PeriodID: periodID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportSnapshot, data, asynq.Queue(QueueDefault)), nil
}

// SnapshotService stores a rendered report for a period.
type SnapshotService interface {
	SaveSnapshot(ctx context.Context, periodID uuid.UUID) error
}

// ReportSnapshotJob handles TaskReportSnapshot tasks.
type ReportSnapshotJob struct {
	Service SnapshotService
}

// Handle executes the snapshot job.
func (j *ReportSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReportSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	periodID, err := uuid.Parse(payload.PeriodID)
	if err != nil {
		return asynq.SkipRetry
	}
	return j.Service.SaveSnapshot(ctx, periodID)
}
