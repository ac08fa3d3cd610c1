package task

import "imss/harvester/internal/domain"

const RecordRetryTaskType = "RecordRetryTask"

type RecordRetryTask struct {
	Stub       domain.RecordStub `json:"stub"`        // Stub whose detail fetch failed
	RetryCount int               `json:"retry_count"` // Number of retry passes already attempted
	Error      string            `json:"error"`       // Error message from the last failure
}

func (t *RecordRetryTask) TaskType() string {
	return RecordRetryTaskType
}

func (t *RecordRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
