package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AVATARKIT"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Rembg   RembgConfig   `mapstructure:"rembg"`
	Face    FaceConfig    `mapstructure:"face"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Storage StorageConfig `mapstructure:"storage"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PublicURL prefixes links to stored results; empty means derive it from
	// the request host.
	PublicURL string `mapstructure:"public_url"`
}

type UploadConfig struct {
	MaxSize       int64  `mapstructure:"max_size"`
	AllowedPrefix string `mapstructure:"allowed_prefix"`
}

type RembgConfig struct {
	Backend         string        `mapstructure:"backend"`
	BaseURL         string        `mapstructure:"base_url"`
	ComfyUIURL      string        `mapstructure:"comfyui_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	QueueTimeout    time.Duration `mapstructure:"queue_timeout"`
	SessionCapacity int           `mapstructure:"session_capacity"`
}

type FaceConfig struct {
	Detector    string `mapstructure:"detector"`
	CascadePath string `mapstructure:"cascade_path"`
	AWSRegion   string `mapstructure:"aws_region"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	TempDir     string        `mapstructure:"temp_dir"`
	TTL         time.Duration `mapstructure:"ttl"`
	CleanupSpec string        `mapstructure:"cleanup_spec"`
}

// Load 从 YAML 文件加载配置，文件不存在时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default is the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.public_url", "")

	v.SetDefault("upload.max_size", 20*1024*1024)
	v.SetDefault("upload.allowed_prefix", "image/")

	v.SetDefault("rembg.backend", "rembg")
	v.SetDefault("rembg.base_url", "http://localhost:7000")
	v.SetDefault("rembg.comfyui_url", "http://localhost:8188")
	v.SetDefault("rembg.timeout", 120*time.Second)
	v.SetDefault("rembg.max_concurrent", 2)
	v.SetDefault("rembg.queue_timeout", 30*time.Second)
	v.SetDefault("rembg.session_capacity", 8)

	v.SetDefault("face.detector", "none")
	v.SetDefault("face.cascade_path", "haarcascade_frontalface_default.xml")
	v.SetDefault("face.aws_region", "us-east-1")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("storage.temp_dir", "temp_images")
	v.SetDefault("storage.ttl", time.Hour)
	v.SetDefault("storage.cleanup_spec", "@every 10m")
}
