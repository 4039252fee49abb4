package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"
)

// Config holds all configuration for the siterag pipeline and server.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Site      SiteConfig      `mapstructure:"site"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and admin auth settings
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
}

// SiteConfig describes the site being ingested and the organization it
// belongs to. The keywords drive query optimization in the retrieval path.
type SiteConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	Organization   string   `mapstructure:"organization"`
	DomainKeywords []string `mapstructure:"domain_keywords"`
}

func (s SiteConfig) Validate() error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("site.base_url is required")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("site.base_url is not a valid absolute URL: %q", s.BaseURL)
	}
	if strings.TrimSpace(s.Organization) == "" {
		return fmt.Errorf("site.organization is required")
	}
	return nil
}

// CrawlerConfig controls fetch scope, concurrency and politeness.
type CrawlerConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Fetcher       string        `mapstructure:"fetcher"` // http or chromedp
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RequestDelay  time.Duration `mapstructure:"request_delay"`
	DiscoverBatch int           `mapstructure:"discover_batch"`
	ScrapeBatch   int           `mapstructure:"scrape_batch"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

func (c CrawlerConfig) Validate() error {
	switch c.Fetcher {
	case "", "http", "chromedp":
	default:
		return fmt.Errorf("crawler.fetcher must be http or chromedp, got %q", c.Fetcher)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries cannot be negative")
	}
	return nil
}

// Normalize applies crawler defaults that mirror the source site's tolerance.
func (c CrawlerConfig) Normalize() CrawlerConfig {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.Fetcher == "" {
		c.Fetcher = "http"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.RequestDelay <= 0 {
		c.RequestDelay = time.Second
	}
	if c.DiscoverBatch <= 0 {
		c.DiscoverBatch = 10
	}
	if c.ScrapeBatch <= 0 {
		c.ScrapeBatch = 5
	}
	return c
}

// ProcessorConfig controls chunking arithmetic.
type ProcessorConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

func (p ProcessorConfig) Normalize() ProcessorConfig {
	if p.ChunkSize <= 0 {
		p.ChunkSize = 500
	}
	if p.ChunkOverlap < 0 {
		p.ChunkOverlap = 0
	}
	return p
}

func (p ProcessorConfig) Validate() error {
	if p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("processor.chunk_overlap (%d) must be smaller than chunk_size (%d)", p.ChunkOverlap, p.ChunkSize)
	}
	return nil
}

// ProviderConfig contains the LLM/embedding provider configuration.
type ProviderConfig struct {
	Type                string        `mapstructure:"type"` // openai
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	CompletionModel     string        `mapstructure:"completion_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Temperature         float64       `mapstructure:"temperature"`
	TopP                float64       `mapstructure:"top_p"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

func (p ProviderConfig) Normalize() ProviderConfig {
	if p.Type == "" {
		p.Type = "openai"
	}
	if p.CompletionModel == "" {
		p.CompletionModel = "gpt-4o-mini"
	}
	if p.EmbeddingModel == "" {
		p.EmbeddingModel = "text-embedding-3-small"
	}
	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 1536
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 1000
	}
	if p.Temperature <= 0 {
		p.Temperature = 0.3
	}
	if p.TopP <= 0 {
		p.TopP = 0.9
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return p
}

func (p ProviderConfig) Validate() error {
	if p.Type != "openai" {
		return fmt.Errorf("provider.type %q is not supported", p.Type)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return fmt.Errorf("provider.api_key is required (or set SITERAG_PROVIDER_API_KEY)")
	}
	return nil
}

// StorageConfig contains vector store and session store settings.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // postgres, qdrant or memory
	Postgres PostgresConfig `mapstructure:"postgres"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "postgres":
		return s.Postgres.Validate()
	case "qdrant":
		return s.Qdrant.Validate()
	case "memory":
		return nil
	default:
		return fmt.Errorf("storage.backend must be postgres, qdrant or memory, got %q", s.Backend)
	}
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a connection string from the individual fields unless URL is set.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// QdrantConfig contains settings for the Qdrant REST backend.
type QdrantConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (q QdrantConfig) Validate() error {
	if strings.TrimSpace(q.URL) == "" {
		return fmt.Errorf("storage.qdrant.url required")
	}
	if strings.TrimSpace(q.Collection) == "" {
		return fmt.Errorf("storage.qdrant.collection required")
	}
	return nil
}

// RedisConfig contains Redis connection settings for conversation sessions.
// Leaving host empty keeps sessions in process memory.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// RetrievalConfig controls the query path.
type RetrievalConfig struct {
	TopK           int     `mapstructure:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	Hybrid         bool    `mapstructure:"hybrid"`
	LexicalPath    string  `mapstructure:"lexical_path"`
	HistoryLimit   int     `mapstructure:"history_limit"`
}

func (r RetrievalConfig) Normalize() RetrievalConfig {
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.HistoryLimit <= 0 {
		r.HistoryLimit = 20
	}
	return r
}

// IngestConfig controls batch ingestion and the optional refresh schedule.
type IngestConfig struct {
	EmbeddingBatchSize int    `mapstructure:"embedding_batch_size"`
	Schedule           string `mapstructure:"schedule"` // cron expression, empty disables
	PagesFile          string `mapstructure:"pages_file"`
	ChunksFile         string `mapstructure:"chunks_file"`
}

func (i IngestConfig) Normalize() IngestConfig {
	if i.EmbeddingBatchSize <= 0 {
		i.EmbeddingBatchSize = 32
	}
	return i
}

func (i IngestConfig) Validate() error {
	if strings.TrimSpace(i.Schedule) == "" {
		return nil
	}
	if _, err := cronexpr.Parse(i.Schedule); err != nil {
		return fmt.Errorf("ingest.schedule is not a valid cron expression: %w", err)
	}
	return nil
}

// LoadConfig loads config from file and environment. Configuration errors
// panic: nothing in the pipeline may start on a broken config.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("storage.backend", "postgres")
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.history_limit", 20)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SITERAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Crawler = config.Crawler.Normalize()
	config.Processor = config.Processor.Normalize()
	config.Provider = config.Provider.Normalize()
	config.Retrieval = config.Retrieval.Normalize()
	config.Ingest = config.Ingest.Normalize()

	if err := config.Site.Validate(); err != nil {
		panic(err)
	}
	if err := config.Crawler.Validate(); err != nil {
		panic(err)
	}
	if err := config.Processor.Validate(); err != nil {
		panic(err)
	}
	if err := config.Provider.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Validate(); err != nil {
		panic(err)
	}
	if err := config.Ingest.Validate(); err != nil {
		panic(err)
	}
	return &config
}
