package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// ServiceToken guards the HTTP API; empty disables auth.
	ServiceToken string `envconfig:"SERVICE_TOKEN"`
	MaxBodyBytes int64  `envconfig:"MAX_BODY_BYTES" default:"5242880"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Embedding backend (OpenAI-compatible).
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL"`

	// External vector backend; empty selects the pgvector store.
	VectorEndpoint string `envconfig:"VECTOR_ENDPOINT"`
	VectorAPIKey   string `envconfig:"VECTOR_API_KEY"`

	// Optional reranker; empty disables reranking.
	RerankEndpoint string `envconfig:"RERANK_ENDPOINT"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`
	RerankModel    string `envconfig:"RERANK_MODEL"`

	// Chunking and ingestion.
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"100"`
	BatchSize    int `envconfig:"BATCH_SIZE" default:"10"`

	// Retrieval and fusion.
	TopK             int     `envconfig:"TOP_K" default:"10"`
	Threshold        float64 `envconfig:"THRESHOLD" default:"0"`
	FusionAlpha      float64 `envconfig:"FUSION_ALPHA" default:"0.7"`
	FusionTopN       int     `envconfig:"FUSION_TOP_N" default:"10"`
	LorebookWeight   float64 `envconfig:"LOREBOOK_WEIGHT" default:"1.2"`
	ManualWeight     float64 `envconfig:"MANUAL_WEIGHT" default:"1.1"`
	ChatRecencySlope float64 `envconfig:"CHAT_RECENCY_SLOPE" default:"0.3"`

	// PrioritySources lists sources given quota-guaranteed groups, in order.
	PrioritySources []string `envconfig:"PRIORITY_SOURCES" default:"lorebook"`
	PriorityLimit   int      `envconfig:"PRIORITY_LIMIT" default:"3"`

	// Auto-condensation.
	AutoCondense          bool `envconfig:"AUTO_CONDENSE" default:"false"`
	CondenseBucketSize    int  `envconfig:"CONDENSE_BUCKET_SIZE" default:"100"`
	PreserveFloors        int  `envconfig:"PRESERVE_FLOORS" default:"20"`
	IndependentChatMemory bool `envconfig:"INDEPENDENT_CHAT_MEMORY" default:"false"`

	// Resume worker.
	ResumePollInterval string `envconfig:"RESUME_POLL_INTERVAL" default:"30s"`

	// Host bridge API; empty disables condensation and lorebook writeback.
	HostEndpoint string `envconfig:"HOST_ENDPOINT"`
	HostToken    string `envconfig:"HOST_TOKEN"`

	// Optional S3 archive of raw source text.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"memoria-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN         string  `envconfig:"SENTRY_DSN"`
	SentryEnvironment string  `envconfig:"SENTRY_ENVIRONMENT"`
	SentrySampleRate  float64 `envconfig:"SENTRY_SAMPLE_RATE" default:"1.0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MEMORIA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRerank() bool {
	return c.RerankEndpoint != ""
}

func (c *Config) HasExternalVectorStore() bool {
	return c.VectorEndpoint != ""
}

func (c *Config) HasHost() bool {
	return c.HostEndpoint != ""
}
