package task

import "imss/harvester/internal/domain"

const LeafRetryTaskType = "LeafRetryTask"

type LeafRetryTask struct {
	Leaf       domain.Leaf      `json:"leaf"`        // Leaf whose overview or listing failed
	Stage      domain.LeafStage `json:"stage"`       // overview or listing
	Page       int              `json:"page"`        // Failed listing page, 0 for overview
	RetryCount int              `json:"retry_count"` // Number of retry passes already attempted
	Error      string           `json:"error"`       // Error message from the last failure
}

func (t *LeafRetryTask) TaskType() string {
	return LeafRetryTaskType
}

func (t *LeafRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
