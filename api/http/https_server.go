package http

import (
	"context"
	"time"

	"EduLink/internal/config"
	"EduLink/internal/initial"
	"EduLink/internal/modules/material/application/service"
	"EduLink/internal/modules/material/infrastructure/chunking"
	"EduLink/internal/modules/material/infrastructure/embedding"
	"EduLink/internal/modules/material/infrastructure/llm"
	"EduLink/internal/modules/material/infrastructure/mq"
	"EduLink/internal/modules/material/infrastructure/mq/kafka"
	"EduLink/internal/modules/material/infrastructure/objectstore"
	"EduLink/internal/modules/material/infrastructure/persistence"
	"EduLink/internal/modules/material/infrastructure/pipeline"
	"EduLink/internal/modules/material/infrastructure/queue"
	materialHandler "EduLink/internal/modules/material/interface/http"
	"EduLink/pkg/cache"
	"EduLink/pkg/ssl"
	"EduLink/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	GE *gin.Engine

	// Worker 与 StatusPub 暴露给 main 做生命周期管理
	Worker    *queue.ProcessWorker
	StatusPub *mq.StatusPublisher
	AppCache  *cache.Cache
)

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))

	ctx := context.Background()

	// 基础设施
	cacheTTL := time.Duration(conf.CacheConfig.DefaultTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	AppCache = cache.New(cacheTTL)

	store := objectstore.NewClient(conf.ObjectStoreConfig)

	materialRepo := persistence.NewMaterialRepository(initial.GormDB)
	chunkRepo := persistence.NewChunkRepository(initial.GormDB)
	queueRepo := persistence.NewProcessQueueRepository(initial.GormDB)

	// 向量化与对话模型
	embedder, meta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("embedder 初始化失败: " + err.Error())
	}
	retryEmbedder := embedding.NewRetryEmbedder(embedder)
	zlog.Info("embedder 就绪",
		zap.String("provider", meta.Provider),
		zap.String("model", meta.Model),
		zap.Int("dim", meta.Dim))

	chatModel, cmMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		// 没有对话模型时问答接口降级为兜底文案，不阻止服务启动
		zlog.Warn("对话模型不可用: " + err.Error())
	} else {
		zlog.Info("对话模型就绪",
			zap.String("provider", cmMeta.Provider),
			zap.String("model", cmMeta.Model))
	}

	// 状态事件发布（可选）
	var pub mq.Publisher
	if len(conf.KafkaConfig.Brokers) > 0 {
		pub, err = kafka.NewSaramaPublisher(kafka.PublisherConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			ClientID: conf.KafkaConfig.ClientID,
		})
		if err != nil {
			zlog.Warn("kafka publisher 初始化失败，状态事件已关闭: " + err.Error())
			pub = nil
		}
	}
	StatusPub = mq.NewStatusPublisher(pub, conf.KafkaConfig.StatusTopic)

	// 处理流水线与 worker
	chunker := chunking.NewParagraphChunker(conf.RetrievalConfig.ChunkSize, conf.RetrievalConfig.ChunkOverlap)
	processPipe, err := pipeline.NewProcessPipeline(store, chunker, retryEmbedder, chunkRepo, meta.Dim)
	if err != nil {
		zlog.Fatal("处理流水线构建失败: " + err.Error())
	}
	Worker = queue.NewProcessWorker(queueRepo, materialRepo, processPipe, StatusPub, queue.WorkerConfig{
		PollInterval: time.Duration(conf.WorkerConfig.PollIntervalMs) * time.Millisecond,
		MaxPoll:      time.Duration(conf.WorkerConfig.MaxPollIntervalMs) * time.Millisecond,
		MaxAttempts:  conf.WorkerConfig.MaxAttempts,
		Visibility:   time.Duration(conf.WorkerConfig.VisibilityTimeoutSeconds) * time.Second,
		Grace:        time.Duration(conf.WorkerConfig.ShutdownGraceMs) * time.Millisecond,
	})

	answerPipe, err := pipeline.NewAnswerPipeline(retryEmbedder, chatModel, chunkRepo, materialRepo,
		conf.RetrievalConfig.TopK, conf.RetrievalConfig.ScoreThreshold, conf.RetrievalConfig.MaxContextChars)
	if err != nil {
		zlog.Fatal("问答流水线构建失败: " + err.Error())
	}

	// 应用服务与 Handler
	uploadSvc := service.NewUploadService(store, materialRepo, queueRepo, AppCache)
	materialSvc := service.NewMaterialService(store, materialRepo, chunkRepo, queueRepo, AppCache)
	querySvc := service.NewQueryService(answerPipe)

	materialH := materialHandler.NewMaterialHandler(uploadSvc, materialSvc)
	queryH := materialHandler.NewQueryHandler(querySvc)
	adminH := materialHandler.NewAdminHandler(materialSvc, queueRepo, Worker)

	GE.POST("/material/upload", materialH.Upload)
	GE.GET("/material/list", materialH.List)
	GE.GET("/material/:id", materialH.Get)
	GE.POST("/material/query", queryH.Ask)

	admin := GE.Group("/admin")
	admin.POST("/material/:id/retry", adminH.RetryMaterial)
	admin.DELETE("/material/:id", adminH.PurgeMaterial)
	admin.GET("/worker/status", adminH.WorkerStatus)
	admin.POST("/worker/trigger", adminH.TriggerWorker)
}
