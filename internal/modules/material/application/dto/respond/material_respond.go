package respond

import "EduLink/internal/modules/material/infrastructure/pipeline"

// MaterialRespond 资料视图；Status 供前端轮询处理进度
type MaterialRespond struct {
	Id        string `json:"id"`
	Title     string `json:"title"`
	CourseId  string `json:"courseId"`
	BlobURL   string `json:"blobUrl"`
	Status    string `json:"status"`
	ErrorMsg  string `json:"errorMsg,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// AnswerRespond 课程问答结果
type AnswerRespond struct {
	Answer       string               `json:"answer"`
	IsOutOfScope bool                 `json:"isOutOfScope"`
	Confidence   float64              `json:"confidence"`
	Sources      []pipeline.SourceRef `json:"sources"`
	Suggestions  []string             `json:"suggestions"`
	DurationMs   int64                `json:"durationMs"`
}

// WorkerStatusRespond 管理端查看 worker 运行状态
type WorkerStatusRespond struct {
	IsRunning         bool  `json:"isRunning"`
	PollIntervalMs    int64 `json:"pollIntervalMs"`
	ConsecutiveErrors int   `json:"consecutiveErrors"`
	PendingCount      int64 `json:"pendingCount"`
}
