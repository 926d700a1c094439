package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPolicyBackfill is the task type for the fallback-store sweep.
	TaskPolicyBackfill = "policy:backfill"
)

// PolicyBackfillPayload narrows an individual sweep. An empty TenantIDs
// slice means every tenant present in the fallback directory.
type PolicyBackfillPayload struct {
	TenantIDs []string `json:"tenant_ids,omitempty"`
}

// NewPolicyBackfillTask constructs an Asynq task for the backfill sweep.
func NewPolicyBackfillTask(payload PolicyBackfillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPolicyBackfill, data), nil
}
