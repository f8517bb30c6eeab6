package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type BatchNotifyMessage struct {
	Status         string `json:"status"`
	CampaignID     uint   `json:"campaign_id"`
	JobID          uint   `json:"job_id"`
	CorrelationID  string `json:"correlation_id"`
	CompletedCount int    `json:"completed_count"`
	FailedCount    int    `json:"failed_count"`
	TotalCount     int    `json:"total_count"`
	Percent        int    `json:"percent"`
	ErrorCode      int    `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
}
