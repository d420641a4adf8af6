package task

// TaskStats 聚合了批次状态的统计信息，常用于仪表盘或健康检查。
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`

	// ErrorCodes 按错误码统计失败批次。
	ErrorCodes map[string]int `json:"error_codes,omitempty"`
}

func (s *TaskStats) add(task *Task) {
	s.Total++
	switch task.Status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
		if task.ErrorCode != "" {
			if s.ErrorCodes == nil {
				s.ErrorCodes = make(map[string]int)
			}
			s.ErrorCodes[task.ErrorCode]++
		}
	}
	if task.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = task.UpdatedAt
	}
	if s.OldestUpdatedAt == 0 || (task.UpdatedAt != 0 && task.UpdatedAt < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = task.UpdatedAt
	}
}
