package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"EduLink/internal/modules/material/domain/material"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

type stubChatModel struct {
	reply    string
	err      error
	calls    int
	lastMsgs []*schema.Message
}

func (s *stubChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.calls++
	s.lastMsgs = input
	if s.err != nil {
		return nil, s.err
	}
	return &schema.Message{Role: schema.Assistant, Content: s.reply}, nil
}

func (s *stubChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type fakeChunkRepo struct {
	byCourse   map[string][]material.MaterialChunk
	byMaterial map[string][]material.MaterialChunk
}

func (f *fakeChunkRepo) ReplaceForMaterial(_ context.Context, materialId string, chunks []material.MaterialChunk) error {
	if f.byMaterial == nil {
		f.byMaterial = map[string][]material.MaterialChunk{}
	}
	f.byMaterial[materialId] = chunks
	return nil
}

func (f *fakeChunkRepo) ListByMaterial(_ context.Context, materialId string) ([]material.MaterialChunk, error) {
	return f.byMaterial[materialId], nil
}

func (f *fakeChunkRepo) ListByCourse(_ context.Context, courseId string) ([]material.MaterialChunk, error) {
	return f.byCourse[courseId], nil
}

func (f *fakeChunkRepo) DeleteByMaterial(_ context.Context, materialId string) error {
	delete(f.byMaterial, materialId)
	return nil
}

type fakeMaterialRepo struct {
	materials map[string]*material.Material
}

func (f *fakeMaterialRepo) Create(_ context.Context, m *material.Material) error {
	f.materials[m.Id] = m
	return nil
}

func (f *fakeMaterialRepo) GetByID(_ context.Context, id string) (*material.Material, error) {
	m, ok := f.materials[id]
	if !ok {
		return nil, material.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMaterialRepo) ListByCourse(_ context.Context, courseId string) ([]material.Material, error) {
	var out []material.Material
	for _, m := range f.materials {
		if m.CourseId == courseId {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMaterialRepo) UpdateStatus(_ context.Context, id string, status string, errMsg string) error {
	m, ok := f.materials[id]
	if !ok {
		return material.ErrNotFound
	}
	m.Status = status
	m.ErrorMsg = errMsg
	return nil
}

func (f *fakeMaterialRepo) Delete(_ context.Context, id string) error {
	delete(f.materials, id)
	return nil
}

func chunkWithVec(materialId string, seq int, content string, vec []float32) material.MaterialChunk {
	c := material.MaterialChunk{MaterialId: materialId, SeqIndex: seq, Content: content}
	if err := c.SetEmbedding(vec); err != nil {
		panic(err)
	}
	return c
}

func newAnswerFixture(t *testing.T, cm model.BaseChatModel, chunkRepo *fakeChunkRepo, matRepo *fakeMaterialRepo, maxContextChars int) *AnswerPipeline {
	t.Helper()
	p, err := NewAnswerPipeline(&stubEmbedder{vec: []float64{1, 0}}, cm, chunkRepo, matRepo, 5, 0.7, maxContextChars)
	require.NoError(t, err)
	return p
}

func TestAnswerNoChunksIsOutOfScope(t *testing.T) {
	cm := &stubChatModel{reply: "不应被调用"}
	p := newAnswerFixture(t, cm,
		&fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{}},
		&fakeMaterialRepo{materials: map[string]*material.Material{}}, 0)

	res, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.NoError(t, err)

	assert.True(t, res.IsOutOfScope)
	assert.Equal(t, OutOfScopeMessage, res.Answer)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Sources)
	assert.Zero(t, cm.calls, "无候选时不应调用模型")
}

func TestAnswerBelowThresholdIsOutOfScope(t *testing.T) {
	cm := &stubChatModel{reply: "不应被调用"}
	chunkRepo := &fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{
		// 查询向量为 [1,0]，正交向量相似度 0，低于阈值 0.7
		"course_1": {chunkWithVec("mat_1", 0, "无关内容", []float32{0, 1})},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "线性代数", CourseId: "course_1", Status: material.StatusCompleted},
	}}
	p := newAnswerFixture(t, cm, chunkRepo, matRepo, 0)

	res, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.NoError(t, err)

	assert.True(t, res.IsOutOfScope)
	assert.Zero(t, cm.calls)
}

func TestAnswerRanksByScoreAndBuildsSources(t *testing.T) {
	cm := &stubChatModel{reply: "  梯度下降是一种迭代优化方法。  "}
	chunkRepo := &fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{
		"course_1": {
			chunkWithVec("mat_1", 0, "梯度下降沿负梯度方向更新参数", []float32{3, 1}), // cos ≈ 0.949
			chunkWithVec("mat_2", 2, "学习率控制每次更新的步长", []float32{2, 0}),   // cos = 1.0
			chunkWithVec("mat_1", 1, "无关的管理学内容", []float32{0, 1}),       // cos = 0，被过滤
		},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "机器学习基础", CourseId: "course_1", Status: material.StatusCompleted},
		"mat_2": {Id: "mat_2", Title: "优化方法", CourseId: "course_1", Status: material.StatusCompleted},
	}}
	p := newAnswerFixture(t, cm, chunkRepo, matRepo, 0)

	res, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.NoError(t, err)

	assert.False(t, res.IsOutOfScope)
	assert.Equal(t, "梯度下降是一种迭代优化方法。", res.Answer)
	assert.Equal(t, 1, cm.calls)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, "mat_2", res.Sources[0].MaterialId, "得分最高的块排在最前")
	assert.Equal(t, "mat_1", res.Sources[1].MaterialId)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9, "置信度取最高相似度")
	assert.Greater(t, res.Sources[0].Score, res.Sources[1].Score)

	require.Len(t, res.Suggestions, 2)
	assert.Contains(t, res.Suggestions[0], "优化方法")
	assert.Contains(t, res.Suggestions[1], "机器学习基础")
}

func TestAnswerContextTruncatedByScoreOrder(t *testing.T) {
	cm := &stubChatModel{reply: "答案"}
	long := strings.Repeat("补充说明内容。", 30)
	chunkRepo := &fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{
		"course_1": {
			chunkWithVec("mat_1", 0, "高分片段", []float32{2, 0}),
			chunkWithVec("mat_1", 1, long, []float32{3, 1}),
		},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "机器学习基础", CourseId: "course_1", Status: material.StatusCompleted},
	}}
	// 上限只容得下高分片段，低分长片段被截掉
	p := newAnswerFixture(t, cm, chunkRepo, matRepo, 40)

	_, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(cm.lastMsgs), 2)
	ctxMsg := cm.lastMsgs[1].Content
	assert.Contains(t, ctxMsg, "高分片段")
	assert.NotContains(t, ctxMsg, long)
}

func TestAnswerOversizedTopChunkStillGetsContext(t *testing.T) {
	cm := &stubChatModel{reply: "答案"}
	huge := strings.Repeat("这一片段超过了上下文上限。", 20)
	chunkRepo := &fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{
		"course_1": {chunkWithVec("mat_1", 0, huge, []float32{2, 0})},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "机器学习基础", CourseId: "course_1", Status: material.StatusCompleted},
	}}
	// 单个最高分片段就超过上限：截断到上限而不是给模型空上下文
	p := newAnswerFixture(t, cm, chunkRepo, matRepo, 50)

	_, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(cm.lastMsgs), 2)
	ctxRunes := []rune(strings.TrimPrefix(cm.lastMsgs[1].Content, "课程资料上下文：\n"))
	assert.NotEmpty(t, ctxRunes)
	assert.LessOrEqual(t, len(ctxRunes), 50)
	assert.Contains(t, string(ctxRunes), "这一片段")
}

func TestAnswerThresholdOverride(t *testing.T) {
	cm := &stubChatModel{reply: "答案"}
	chunkRepo := &fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{
		// cos([1,0], [0.6,0.8]) = 0.6，低于默认阈值 0.7
		"course_1": {chunkWithVec("mat_1", 0, "勉强相关的内容", []float32{0.6, 0.8})},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "机器学习基础", CourseId: "course_1", Status: material.StatusCompleted},
	}}
	p := newAnswerFixture(t, cm, chunkRepo, matRepo, 0)

	res, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.NoError(t, err)
	assert.True(t, res.IsOutOfScope)

	res, err = p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1", ScoreThreshold: 0.5})
	require.NoError(t, err)
	assert.False(t, res.IsOutOfScope)
	assert.InDelta(t, 0.6, res.Confidence, 1e-6)
}

func TestAnswerMaterialScopeRequiresCompleted(t *testing.T) {
	cm := &stubChatModel{reply: "不应被调用"}
	chunkRepo := &fakeChunkRepo{byMaterial: map[string][]material.MaterialChunk{
		"mat_1": {chunkWithVec("mat_1", 0, "内容", []float32{2, 0})},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "机器学习基础", CourseId: "course_1", Status: material.StatusProcessing},
	}}
	p := newAnswerFixture(t, cm, chunkRepo, matRepo, 0)

	res, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", MaterialId: "mat_1"})
	require.NoError(t, err)

	assert.True(t, res.IsOutOfScope, "未完成处理的资料没有可检索内容")
	assert.Zero(t, cm.calls)
}

func TestAnswerValidation(t *testing.T) {
	p := newAnswerFixture(t, &stubChatModel{},
		&fakeChunkRepo{}, &fakeMaterialRepo{materials: map[string]*material.Material{}}, 0)

	tests := []struct {
		name string
		req  AnswerRequest
	}{
		{"空问题", AnswerRequest{Question: "  ", CourseId: "course_1"}},
		{"缺少检索范围", AnswerRequest{Question: "什么是梯度下降"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Answer(context.Background(), tt.req)
			var ve *material.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestAnswerNilChatModelFailsTransient(t *testing.T) {
	chunkRepo := &fakeChunkRepo{byCourse: map[string][]material.MaterialChunk{
		"course_1": {chunkWithVec("mat_1", 0, "内容", []float32{2, 0})},
	}}
	matRepo := &fakeMaterialRepo{materials: map[string]*material.Material{
		"mat_1": {Id: "mat_1", Title: "机器学习基础", CourseId: "course_1", Status: material.StatusCompleted},
	}}
	p := newAnswerFixture(t, nil, chunkRepo, matRepo, 0)

	_, err := p.Answer(context.Background(), AnswerRequest{Question: "什么是梯度下降", CourseId: "course_1"})
	require.Error(t, err)
	assert.True(t, material.IsTransient(err))
}
