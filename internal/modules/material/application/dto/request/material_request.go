package request

// UploadMaterialRequest 上传课程资料的表单字段（文件走 multipart）
type UploadMaterialRequest struct {
	Title    string `form:"title" binding:"required"`
	CourseId string `form:"courseId" binding:"required"`
}

// ListMaterialRequest 按课程查询资料列表
type ListMaterialRequest struct {
	CourseId string `form:"courseId" binding:"required"`
}

// QueryRequest 课程问答请求；courseId 与 materialId 至少提供一个
type QueryRequest struct {
	Question   string `json:"question" binding:"required"`
	CourseId   string `json:"courseId"`
	MaterialId string `json:"materialId"`
	TopK       int    `json:"topK"`
	// ScoreThreshold 覆盖默认相似度阈值，0 表示使用服务端配置
	ScoreThreshold float64 `json:"scoreThreshold"`
}
