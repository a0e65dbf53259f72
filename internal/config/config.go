package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/utils"
)

const DefaultPath = "config.json"

type ServerConfig struct {
	Host           string   `json:"host" toml:"host"`
	Port           int      `json:"port" toml:"port"`
	ReadTimeout    string   `json:"read_timeout" toml:"read_timeout"`
	WriteTimeout   string   `json:"write_timeout" toml:"write_timeout"`
	PingInterval   string   `json:"ping_interval" toml:"ping_interval"`
	SendBuffer     int      `json:"send_buffer" toml:"send_buffer"`
	MaxUploadSize  int64    `json:"max_upload_size" toml:"max_upload_size"`
	AllowedOrigins []string `json:"allowed_origins" toml:"allowed_origins"`
}

type SessionConfig struct {
	// 0 表示不限制, 会话在进程生命周期内一直存在
	MaxSessions int `json:"max_sessions" toml:"max_sessions"`
}

type EngineConfig struct {
	AllowUnjoinedMutations bool `json:"allow_unjoined_mutations" toml:"allow_unjoined_mutations"`
}

type AssetsConfig struct {
	Backend   string `json:"backend" toml:"backend"`
	UploadDir string `json:"upload_dir" toml:"upload_dir"`
	Bucket    string `json:"bucket" toml:"bucket"`
}

type DatabaseConfig struct {
	Host               string `json:"host" toml:"host"`
	Port               uint64 `json:"port" toml:"port"`
	Username           string `json:"username" toml:"username"`
	Password           string `json:"password" toml:"password"`
	Database           string `json:"database" toml:"database"`
	UseTLS             bool   `json:"use_tls" toml:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout" toml:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout" toml:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout" toml:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout" toml:"operation_timeout"`
	Heartbeat          string `json:"heartbeat" toml:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size" toml:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size" toml:"max_pool_size"`
}

type Config struct {
	Server    ServerConfig   `json:"server" toml:"server"`
	Session   SessionConfig  `json:"session" toml:"session"`
	Engine    EngineConfig   `json:"engine" toml:"engine"`
	Assets    AssetsConfig   `json:"assets" toml:"assets"`
	Database  DatabaseConfig `json:"database" toml:"database"`
	DebugMode bool           `json:"debug_mode" toml:"debug_mode"`
	AppName   string         `json:"app_name" toml:"app_name"`
	LogDir    string         `json:"log_dir" toml:"log_dir"`
}

const (
	BackendDisk   = "disk"
	BackendGridFS = "gridfs"
)

var ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")

// Default 返回带有全部默认值的配置
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "",
			Port:           3001,
			ReadTimeout:    "60s",
			WriteTimeout:   "10s",
			PingInterval:   "30s",
			SendBuffer:     256,
			MaxUploadSize:  20 << 20,
			AllowedOrigins: []string{"*"},
		},
		Assets: AssetsConfig{
			Backend:   BackendDisk,
			UploadDir: "uploads",
			Bucket:    "maps",
		},
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               27017,
			Database:           "tabletop",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "10s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        16,
		},
		AppName: "tabletop",
		LogDir:  "logs",
	}
}

func (c Config) ReadTimeout() time.Duration {
	return utils.MustParseStringTime(c.Server.ReadTimeout, 60*time.Second)
}

func (c Config) WriteTimeout() time.Duration {
	return utils.MustParseStringTime(c.Server.WriteTimeout, 10*time.Second)
}

func (c Config) PingInterval() time.Duration {
	return utils.MustParseStringTime(c.Server.PingInterval, 30*time.Second)
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate 检查配置中无法在运行期恢复的错误
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("server.send_buffer must be positive"))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_size must be positive"))
	}
	if c.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("session.max_sessions must not be negative"))
	}
	for name, value := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"server.ping_interval": c.Server.PingInterval,
	} {
		d, err := utils.ParseStringTime(value)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		case d <= 0:
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	switch c.Assets.Backend {
	case BackendDisk:
		if c.Assets.UploadDir == "" {
			errs = append(errs, fmt.Errorf("assets.upload_dir is required for the disk backend"))
		}
	case BackendGridFS:
		if c.Database.Database == "" {
			errs = append(errs, fmt.Errorf("database.database is required for the gridfs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown assets.backend %q", c.Assets.Backend))
	}
	return errors.Join(errs...)
}

func decode(path string, data []byte, out *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("the configuration file does not contain valid TOML: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("the configuration file does not contain valid JSON: %w", err)
	}
	return nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	writer, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer writer.Close()
	def := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.NewEncoder(writer).Encode(def)
	}
	data, _ := json.MarshalIndent(def, "", "\t")
	_, err = writer.Write(data)
	return err
}

// ReadConfig 读取配置文件, 文件不存在时写出默认配置并返回 ErrConfigCreated
func ReadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("error occured while reading %s: %w", path, err)
		}
		if werr := writeDefault(path); werr != nil {
			return Config{}, fmt.Errorf("error occured while creating %s: %w", path, werr)
		}
		return Config{}, ErrConfigCreated
	}

	result := Default()
	if err := decode(path, bytes, &result); err != nil {
		return Config{}, err
	}
	if err := result.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return result, nil
}
