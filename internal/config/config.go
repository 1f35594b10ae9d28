package config

import (
	"log"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

// ObjectStoreConfig 远端对象存储（课件 PDF、图片等二进制文件）
type ObjectStoreConfig struct {
	BaseURL        string `toml:"baseURL"`
	CloudName      string `toml:"cloudName"`
	UploadPreset   string `toml:"uploadPreset"`
	APIKey         string `toml:"apiKey"`
	APISecret      string `toml:"apiSecret"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

type AIEmbeddingConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	RetryTimes     int    `toml:"retryTimes"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

// KafkaConfig 素材状态事件发布（可选；brokers 为空时关闭）
type KafkaConfig struct {
	Brokers     []string `toml:"brokers"`
	ClientID    string   `toml:"clientID"`
	StatusTopic string   `toml:"statusTopic"`
}

// WorkerConfig 素材处理后台 Worker
type WorkerConfig struct {
	PollIntervalMs           int `toml:"pollIntervalMs"`           // 基础轮询间隔，默认 5000
	MaxPollIntervalMs        int `toml:"maxPollIntervalMs"`        // 退避上限，默认 60000
	MaxAttempts              int `toml:"maxAttempts"`              // 单条目最大重试次数，默认 5
	VisibilityTimeoutSeconds int `toml:"visibilityTimeoutSeconds"` // 领取后不可见窗口，默认 600
	ShutdownGraceMs          int `toml:"shutdownGraceMs"`          // 关停时等待在途任务的宽限期，默认 2000
}

// RetrievalConfig 检索与回答引擎
type RetrievalConfig struct {
	TopK            int     `toml:"topK"`            // 默认 5
	ScoreThreshold  float64 `toml:"scoreThreshold"`  // 默认 0.7
	MaxContextChars int     `toml:"maxContextChars"` // 默认 8000
	ChunkSize       int     `toml:"chunkSize"`       // 默认 1000
	ChunkOverlap    int     `toml:"chunkOverlap"`    // 默认 100
}

type CacheConfig struct {
	DefaultTTLSeconds int `toml:"defaultTTLSeconds"`
}

type Config struct {
	MainConfig        `toml:"mainConfig"`
	MysqlConfig       `toml:"mysqlConfig"`
	LogConfig         `toml:"logConfig"`
	ObjectStoreConfig `toml:"objectStoreConfig"`
	AIConfig          `toml:"aiConfig"`
	KafkaConfig       `toml:"kafkaConfig"`
	WorkerConfig      `toml:"workerConfig"`
	RetrievalConfig   `toml:"retrievalConfig"`
	CacheConfig       `toml:"cacheConfig"`
}

var config *Config

func LoadConfig() error {
	configPath := "configs/config_local.toml"
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}
