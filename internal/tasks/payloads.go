package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeBatchPersonalize = "batch:personalize"
)

// BatchPersonalizePayload 描述一次批量个性化任务所需的最小信息。
// CSV 数据已入库（BatchJob.Rows），这里只携带标识。
type BatchPersonalizePayload struct {
	JobID         uint   `json:"job_id"`
	CampaignID    uint   `json:"campaign_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewBatchPersonalizeTask 构造一个新的批量个性化任务。
func NewBatchPersonalizeTask(jobID, campaignID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(BatchPersonalizePayload{
		JobID:         jobID,
		CampaignID:    campaignID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBatchPersonalize, payload), nil
}
