package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// OutOfScopeMessage 命中不足时的固定回复，不调用模型
const OutOfScopeMessage = "这个问题超出了当前课程资料的范围，暂时无法回答。建议咨询任课老师或查阅其他资料。"

const answerSystemPrompt = "你是一名课程学习助手。只能依据给出的课程资料上下文回答问题，" +
	"不要编造上下文之外的内容；回答末尾标注引用的资料标题。如果上下文不足以回答，请直说。"

const snippetMaxRunes = 120

type candidate struct {
	chunk material.MaterialChunk
	title string
	score float64
}

// answerState 问答流水线的中间状态
type answerState struct {
	Req        *AnswerRequest
	QueryVec   []float64
	Candidates []candidate // 召回的全部候选
	Ranked     []candidate // 过滤排序后的 topK
	Context    string
	Answer     string

	Start time.Time
	Err   error
}

// buildGraph 节点顺序：EmbedQuery → FetchCandidates → Rank → Compose → BuildResult
func (p *AnswerPipeline) buildGraph(ctx context.Context) (compose.Runnable[*AnswerRequest, *AnswerResult], error) {
	const (
		EmbedQuery      = "EmbedQuery"
		FetchCandidates = "FetchCandidates"
		Rank            = "Rank"
		Compose         = "Compose"
		BuildResult     = "BuildResult"
	)
	g := compose.NewGraph[*AnswerRequest, *AnswerResult]()

	_ = g.AddLambdaNode(EmbedQuery, compose.InvokableLambdaWithOption(p.embedQueryNode), compose.WithNodeName(EmbedQuery))
	_ = g.AddLambdaNode(FetchCandidates, compose.InvokableLambdaWithOption(p.fetchCandidatesNode), compose.WithNodeName(FetchCandidates))
	_ = g.AddLambdaNode(Rank, compose.InvokableLambdaWithOption(p.rankNode), compose.WithNodeName(Rank))
	_ = g.AddLambdaNode(Compose, compose.InvokableLambdaWithOption(p.composeNode), compose.WithNodeName(Compose))
	_ = g.AddLambdaNode(BuildResult, compose.InvokableLambdaWithOption(p.buildResultNode), compose.WithNodeName(BuildResult))

	_ = g.AddEdge(compose.START, EmbedQuery)
	_ = g.AddEdge(EmbedQuery, FetchCandidates)
	_ = g.AddEdge(FetchCandidates, Rank)
	_ = g.AddEdge(Rank, Compose)
	_ = g.AddEdge(Compose, BuildResult)
	_ = g.AddEdge(BuildResult, compose.END)

	return g.Compile(ctx, compose.WithGraphName("MaterialAnswerPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

// embedQueryNode 节点 1：校验请求并向量化问题
func (p *AnswerPipeline) embedQueryNode(ctx context.Context, req *AnswerRequest, _ ...any) (*answerState, error) {
	st := &answerState{Req: req, Start: time.Now()}
	if req == nil {
		st.Err = &material.ValidationError{Field: "request", Reason: "为空"}
		return st, nil
	}
	req.Question = strings.TrimSpace(req.Question)
	req.CourseId = strings.TrimSpace(req.CourseId)
	req.MaterialId = strings.TrimSpace(req.MaterialId)
	if req.Question == "" {
		st.Err = &material.ValidationError{Field: "question", Reason: "缺失"}
		return st, nil
	}
	if req.CourseId == "" && req.MaterialId == "" {
		st.Err = &material.ValidationError{Field: "course_id/material_id", Reason: "至少提供一个检索范围"}
		return st, nil
	}
	if req.TopK <= 0 {
		req.TopK = p.topK
	}
	if req.ScoreThreshold <= 0 {
		req.ScoreThreshold = p.scoreThreshold
	}

	vecs, err := p.embedder.EmbedStrings(ctx, []string{req.Question})
	if err != nil {
		st.Err = err
		return st, nil
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		st.Err = &material.TransientIOError{Op: "embedding", Err: fmt.Errorf("问题向量化结果为空")}
		return st, nil
	}
	st.QueryVec = vecs[0]
	return st, nil
}

// fetchCandidatesNode 节点 2：按范围召回候选块并补齐资料标题
func (p *AnswerPipeline) fetchCandidatesNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}

	var (
		chunks []material.MaterialChunk
		err    error
	)
	titles := map[string]string{}

	if st.Req.MaterialId != "" {
		m, gerr := p.materialRepo.GetByID(ctx, st.Req.MaterialId)
		if gerr != nil {
			st.Err = gerr
			return st, nil
		}
		if m.Status != material.StatusCompleted {
			// 未完成处理的资料没有可检索内容
			st.Candidates = []candidate{}
			return st, nil
		}
		titles[m.Id] = m.Title
		chunks, err = p.chunkRepo.ListByMaterial(ctx, st.Req.MaterialId)
	} else {
		mats, lerr := p.materialRepo.ListByCourse(ctx, st.Req.CourseId)
		if lerr != nil {
			st.Err = lerr
			return st, nil
		}
		for _, m := range mats {
			titles[m.Id] = m.Title
		}
		chunks, err = p.chunkRepo.ListByCourse(ctx, st.Req.CourseId)
	}
	if err != nil {
		st.Err = err
		return st, nil
	}

	out := make([]candidate, 0, len(chunks))
	for i := range chunks {
		out = append(out, candidate{chunk: chunks[i], title: titles[chunks[i].MaterialId]})
	}
	st.Candidates = out
	return st, nil
}

// rankNode 节点 3：应用侧余弦相似度排序，阈值过滤后取 topK
func (p *AnswerPipeline) rankNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	_ = ctx
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}

	ranked := make([]candidate, 0, len(st.Candidates))
	for _, c := range st.Candidates {
		vec, err := c.chunk.Embedding()
		if err != nil || len(vec) == 0 {
			continue
		}
		c.score = Cosine(st.QueryVec, vec)
		if c.score >= st.Req.ScoreThreshold {
			ranked = append(ranked, c)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > st.Req.TopK {
		ranked = ranked[:st.Req.TopK]
	}
	st.Ranked = ranked
	return st, nil
}

// composeNode 节点 4：组装上下文并调用模型；无命中直接跳过模型调用
func (p *AnswerPipeline) composeNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil || len(st.Ranked) == 0 {
		return st, nil
	}
	if p.chatModel == nil {
		st.Err = &material.TransientIOError{Op: "chat_model", Err: fmt.Errorf("对话模型不可用")}
		return st, nil
	}

	// 上下文按得分从高到低填充，超出上限时低分片段被截掉；
	// 最高分片段始终保留，必要时截断到上限，避免模型拿到空上下文
	var sb strings.Builder
	used := 0
	for i, c := range st.Ranked {
		piece := fmt.Sprintf("【%s】\n%s\n\n", c.title, c.chunk.Content)
		runes := []rune(piece)
		if used+len(runes) > p.maxContextChars {
			if i == 0 {
				sb.WriteString(string(runes[:p.maxContextChars]))
			}
			break
		}
		sb.WriteString(piece)
		used += len(runes)
	}
	st.Context = sb.String()

	msgs := []*schema.Message{
		{Role: schema.System, Content: answerSystemPrompt},
		{Role: schema.System, Content: "课程资料上下文：\n" + st.Context},
		{Role: schema.User, Content: st.Req.Question},
	}
	resp, err := p.chatModel.Generate(ctx, msgs)
	if err != nil {
		st.Err = &material.TransientIOError{Op: "chat_model", Err: err}
		return st, nil
	}
	st.Answer = strings.TrimSpace(resp.Content)
	return st, nil
}

// buildResultNode 节点 5：组装响应；置信度取最高相似度
func (p *AnswerPipeline) buildResultNode(ctx context.Context, st *answerState, _ ...any) (*AnswerResult, error) {
	_ = ctx
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}

	res := &AnswerResult{Sources: []SourceRef{}, Suggestions: []string{}}
	res.DurationMs = time.Since(st.Start).Milliseconds()

	if st.Err != nil {
		return res, st.Err
	}

	if len(st.Ranked) == 0 {
		res.IsOutOfScope = true
		res.Answer = OutOfScopeMessage
		zlog.Info("检索未命中，返回范围外回复",
			zap.String("question", st.Req.Question),
			zap.String("course_id", st.Req.CourseId),
			zap.String("material_id", st.Req.MaterialId),
			zap.Int64("ms", res.DurationMs),
		)
		return res, nil
	}

	res.Answer = st.Answer
	res.Confidence = st.Ranked[0].score

	seenTitle := map[string]struct{}{}
	for _, c := range st.Ranked {
		res.Sources = append(res.Sources, SourceRef{
			MaterialId: c.chunk.MaterialId,
			Title:      c.title,
			SeqIndex:   c.chunk.SeqIndex,
			Score:      c.score,
			Snippet:    snippet(c.chunk.Content),
		})
		if _, ok := seenTitle[c.title]; !ok && c.title != "" {
			seenTitle[c.title] = struct{}{}
			res.Suggestions = append(res.Suggestions, fmt.Sprintf("想进一步了解，可以阅读《%s》", c.title))
		}
	}

	zlog.Info("检索问答完成",
		zap.String("question", st.Req.Question),
		zap.Float64("confidence", res.Confidence),
		zap.Int("sources", len(res.Sources)),
		zap.Int("context_chars", len([]rune(st.Context))),
		zap.Int64("ms", res.DurationMs),
	)
	return res, nil
}

func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetMaxRunes {
		return string(runes)
	}
	return string(runes[:snippetMaxRunes]) + "…"
}
