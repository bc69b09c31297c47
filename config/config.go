package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
)

// Config is the flat application configuration, bound from the environment.
type Config struct {
	// Server
	ServerHost         string        `mapstructure:"server_host"`
	ServerPort         int           `mapstructure:"server_port"`
	ServerDomain       string        `mapstructure:"server_domain"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`

	// Database
	DBType            string `mapstructure:"db_type"`
	DBHost            string `mapstructure:"db_host"`
	DBPort            int    `mapstructure:"db_port"`
	DBUsername        string `mapstructure:"db_username"`
	DBPassword        string `mapstructure:"db_password"`
	DBName            string `mapstructure:"db_name"`
	DBFilePath        string `mapstructure:"db_file_path"`
	DBMaxOpenConns    int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns    int    `mapstructure:"db_max_idle_conns"`
	DBConnMaxLifetime int    `mapstructure:"db_conn_max_lifetime"`

	// Storage
	StorageType          string `mapstructure:"storage_type"`
	StorageLocalPath     string `mapstructure:"storage_local_path"`
	MinioEndpoint        string `mapstructure:"minio_endpoint"`
	MinioAccessKeyID     string `mapstructure:"minio_access_key_id"`
	MinioSecretAccessKey string `mapstructure:"minio_secret_access_key"`
	MinioBucketName      string `mapstructure:"minio_bucket_name"`
	MinioUseSSL          bool   `mapstructure:"minio_use_ssl"`
	S3Endpoint           string `mapstructure:"s3_endpoint"`
	S3Region             string `mapstructure:"s3_region"`
	S3Bucket             string `mapstructure:"s3_bucket"`
	S3AccessKey          string `mapstructure:"s3_access_key"`
	S3SecretKey          string `mapstructure:"s3_secret_key"`
	WebDAVURL            string `mapstructure:"webdav_url"`
	WebDAVUsername       string `mapstructure:"webdav_username"`
	WebDAVPassword       string `mapstructure:"webdav_password"`
	WebDAVRoot           string `mapstructure:"webdav_root"`

	// Cache
	CacheType            string `mapstructure:"cache_type"`
	CacheRedisAddr       string `mapstructure:"cache_redis_addr"`
	CacheRedisPassword   string `mapstructure:"cache_redis_password"`
	CacheRedisDB         int    `mapstructure:"cache_redis_db"`
	CacheMaxDataSizeMB   int64  `mapstructure:"cache_max_data_size_mb"`
	CacheMetaTTLSeconds  int    `mapstructure:"cache_meta_ttl_seconds"`
	CacheDataTTLSeconds  int    `mapstructure:"cache_data_ttl_seconds"`
	CacheEnableDataCache bool   `mapstructure:"cache_enable_data_cache"`

	// Upload / validation
	UploadMaxSizeMB       int   `mapstructure:"upload_max_size_mb"`
	UploadMaxBatchTotalMB int   `mapstructure:"upload_max_batch_total_mb"`
	UploadMaxPixels       int64 `mapstructure:"upload_max_pixels"`

	// Renditions
	RenditionFormat     string `mapstructure:"rendition_format"`
	RenditionQuality    int    `mapstructure:"rendition_quality"`
	RenditionMaxRetries int    `mapstructure:"rendition_max_retries"`
	RenditionSizesJSON  string `mapstructure:"rendition_sizes"`

	// Rate limiting
	RateLimitApiRPS     float64       `mapstructure:"rate_limit_api_rps"`
	RateLimitApiBurst   int           `mapstructure:"rate_limit_api_burst"`
	RateLimitAssetRPS   float64       `mapstructure:"rate_limit_asset_rps"`
	RateLimitAssetBurst int           `mapstructure:"rate_limit_asset_burst"`
	RateLimitAuthRPS    float64       `mapstructure:"rate_limit_auth_rps"`
	RateLimitAuthBurst  int           `mapstructure:"rate_limit_auth_burst"`
	RateLimitExpireTime time.Duration `mapstructure:"rate_limit_expire_time"`

	// Auth
	JwtSecret           string        `mapstructure:"jwt_secret"`
	JwtExpiresIn        time.Duration `mapstructure:"jwt_expires_in"`
	JwtRefreshExpiresIn time.Duration `mapstructure:"jwt_refresh_expires_in"`

	// Worker
	WorkerCount     int `mapstructure:"worker_count"`
	WorkerQueueSize int `mapstructure:"worker_queue_size"`
}

// InitConfig loads the configuration exactly once.
func InitConfig() {
	once.Do(func() {
		loadConfig()
	})
}

func Get() *Config {
	return &globalConfig
}

func loadConfig() {
	setDefaults()

	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Info: .env file not found, using defaults and environment variables")
	} else {
		fmt.Fprintln(os.Stderr, "Info: Loaded configuration from .env file")
	}

	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}

	// WorkerCount: -1 = GOMAXPROCS, 0 = default (max(2, cores)), >0 = as configured
	switch {
	case globalConfig.WorkerCount < 0:
		globalConfig.WorkerCount = runtime.GOMAXPROCS(0)
	case globalConfig.WorkerCount == 0:
		globalConfig.WorkerCount = getCpus()
	}
}

func setDefaults() {
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("server_domain", "")
	viper.SetDefault("server_read_timeout", "15s")
	viper.SetDefault("server_write_timeout", "30s")
	viper.SetDefault("server_idle_timeout", "120s")

	viper.SetDefault("db_type", "sqlite")
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_username", "postgres")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_name", "galerly")
	viper.SetDefault("db_file_path", "")
	viper.SetDefault("db_max_open_conns", 100)
	viper.SetDefault("db_max_idle_conns", 25)
	viper.SetDefault("db_conn_max_lifetime", 3600)

	viper.SetDefault("storage_type", "local")
	viper.SetDefault("storage_local_path", "./data/storage")
	viper.SetDefault("minio_endpoint", "")
	viper.SetDefault("minio_bucket_name", "galerly")
	viper.SetDefault("minio_use_ssl", false)
	viper.SetDefault("s3_endpoint", "")
	viper.SetDefault("s3_region", "auto")
	viper.SetDefault("s3_bucket", "")
	viper.SetDefault("webdav_url", "")
	viper.SetDefault("webdav_root", "galerly")

	viper.SetDefault("cache_type", "memory")
	viper.SetDefault("cache_redis_addr", "localhost:6379")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)
	viper.SetDefault("cache_max_data_size_mb", 10)
	viper.SetDefault("cache_meta_ttl_seconds", 3600)
	viper.SetDefault("cache_data_ttl_seconds", 3600)
	viper.SetDefault("cache_enable_data_cache", false)

	viper.SetDefault("upload_max_size_mb", 200)
	viper.SetDefault("upload_max_batch_total_mb", 1000)
	// Decoded width*height ceiling, blocks decompression bombs (~179 megapixels)
	viper.SetDefault("upload_max_pixels", 179_000_000)

	viper.SetDefault("rendition_format", "webp")
	viper.SetDefault("rendition_quality", 80)
	viper.SetDefault("rendition_max_retries", 3)
	viper.SetDefault("rendition_sizes", "")

	viper.SetDefault("rate_limit_api_rps", 30.0)
	viper.SetDefault("rate_limit_api_burst", 60)
	viper.SetDefault("rate_limit_asset_rps", 100.0)
	viper.SetDefault("rate_limit_asset_burst", 200)
	viper.SetDefault("rate_limit_auth_rps", 0.5)
	viper.SetDefault("rate_limit_auth_burst", 5)
	viper.SetDefault("rate_limit_expire_time", "10m")

	viper.SetDefault("jwt_secret", "")
	viper.SetDefault("jwt_expires_in", "15m")
	viper.SetDefault("jwt_refresh_expires_in", "168h")

	viper.SetDefault("worker_count", 0)
	viper.SetDefault("worker_queue_size", 1000)
}

// RenditionSizeSetting is one pre-generated variant dimension. Height
// 0 keeps the original aspect ratio.
type RenditionSizeSetting struct {
	Name   string `mapstructure:"name"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// RenditionSizes decodes the rendition_sizes setting, a JSON list of
// {name,width,height} objects, e.g.
// [{"name":"small","width":150},{"name":"large","width":600}].
// Returns nil when unset or malformed so callers fall back to the
// built-in variant set.
func (c *Config) RenditionSizes() []RenditionSizeSetting {
	if c.RenditionSizesJSON == "" {
		return nil
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(c.RenditionSizesJSON), &entries); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid rendition_sizes value, using defaults: %v\n", err)
		return nil
	}

	var sizes []RenditionSizeSetting
	if err := mapstructure.Decode(entries, &sizes); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to decode rendition_sizes, using defaults: %v\n", err)
		return nil
	}

	for _, size := range sizes {
		if size.Width <= 0 {
			fmt.Fprintln(os.Stderr, "Warning: rendition_sizes entry without a positive width, using defaults")
			return nil
		}
	}

	return sizes
}

// Addr returns the listen address as "host:port".
func (c *Config) Addr() string {
	host := c.ServerHost
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.ServerPort
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// BaseURL returns the public base URL used when building asset links.
func (c *Config) BaseURL() string {
	if c.ServerDomain != "" {
		return c.ServerDomain
	}
	host := c.ServerHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.ServerPort)
}

func getCpus() int {
	n := runtime.GOMAXPROCS(0)
	if n < 2 {
		return 2
	}
	return n
}
