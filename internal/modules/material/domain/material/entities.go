package material

import (
	"database/sql"
	"encoding/json"
	"time"
)

// 课程资料状态机：pending -> processing -> completed / failed
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// 处理队列条目状态
const (
	QueuePending    int8 = 0 // 待领取（含等待重试）
	QueueProcessing int8 = 1 // 已被 worker 领取
)

// Material 课程资料元数据，上传即落库，后续由 worker 异步处理
type Material struct {
	Id           string    `gorm:"column:id;type:char(25);primaryKey"`
	Title        string    `gorm:"column:title;type:varchar(128);not null"`
	CourseId     string    `gorm:"column:course_id;type:char(25);not null;index:idx_edu_material_course"`
	BlobURL      string    `gorm:"column:blob_url;type:varchar(512);not null"`
	BlobPublicId string    `gorm:"column:blob_public_id;type:varchar(128);not null"`
	Status       string    `gorm:"column:status;type:varchar(20);not null;default:pending;index:idx_edu_material_status"`
	ErrorMsg     string    `gorm:"column:error_msg;type:varchar(255)"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Material) TableName() string { return "edu_material" }

// MaterialChunk 切分后的文本块与其向量；向量以 JSON 数组列存储，检索时在应用侧做余弦相似度
type MaterialChunk struct {
	Id            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MaterialId    string    `gorm:"column:material_id;type:char(25);not null;index:idx_edu_chunk_material"`
	SeqIndex      int       `gorm:"column:seq_index;type:int;not null"`
	Content       string    `gorm:"column:content;type:mediumtext"`
	EmbeddingJson string    `gorm:"column:embedding_json;type:json"`
	Dim           int       `gorm:"column:dim;type:int;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:datetime;not null"`
}

func (MaterialChunk) TableName() string { return "edu_material_chunk" }

// SetEmbedding 将向量序列化写入 JSON 列
func (c *MaterialChunk) SetEmbedding(vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	c.EmbeddingJson = string(raw)
	c.Dim = len(vec)
	return nil
}

// Embedding 反序列化 JSON 列中的向量
func (c *MaterialChunk) Embedding() ([]float32, error) {
	if c.EmbeddingJson == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(c.EmbeddingJson), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// ProcessQueueEntry 持久化工作队列条目；material_id 唯一，入队具备幂等性
type ProcessQueueEntry struct {
	Id          int64        `gorm:"column:id;primaryKey;autoIncrement"`
	MaterialId  string       `gorm:"column:material_id;type:char(25);not null;uniqueIndex:uniq_edu_queue_material"`
	Status      int8         `gorm:"column:status;type:tinyint;not null;default:0;index:idx_edu_queue_status"`
	Attempts    int          `gorm:"column:attempts;type:int;not null;default:0"`
	LastError   string       `gorm:"column:last_error;type:varchar(255)"`
	NextRetryAt sql.NullTime `gorm:"column:next_retry_at;type:datetime;index:idx_edu_queue_next_retry"`
	ClaimedAt   sql.NullTime `gorm:"column:claimed_at;type:datetime"`
	EnqueuedAt  time.Time    `gorm:"column:enqueued_at;type:datetime;not null"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;type:datetime;not null"`
}

func (ProcessQueueEntry) TableName() string { return "edu_material_process_queue" }
