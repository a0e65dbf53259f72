package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	c "github.com/life-stream-dev/life-stream-go-tabletop/internal/config"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/utils"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DBCloseCallback struct {
	client  *mongo.Client
	timeout time.Duration
}

func NewDBCloseCallback(client *mongo.Client, timeout time.Duration) *DBCloseCallback {
	return &DBCloseCallback{client: client, timeout: timeout}
}

func (dc *DBCloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, dc.timeout)
	defer cancel()
	return dc.client.Disconnect(ctx)
}

// buildURI 编码用户名密码中的特殊字符
func buildURI(config c.DatabaseConfig) string {
	if config.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d/", config.Host, config.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		url.QueryEscape(config.Username),
		url.QueryEscape(config.Password),
		config.Host,
		config.Port,
	)
}

func parseTimeouts(config c.DatabaseConfig) (map[string]time.Duration, error) {
	fields := map[string]string{
		"connect_timeout":      config.ConnectTimeout,
		"socket_timeout":       config.SocketTimeout,
		"connect_idle_timeout": config.ConnectIdleTimeout,
		"operation_timeout":    config.OperationTimeout,
		"heartbeat":            config.Heartbeat,
	}
	result := make(map[string]time.Duration, len(fields))
	for name, value := range fields {
		d, err := utils.ParseStringTime(value)
		if err != nil {
			return nil, fmt.Errorf("database.%s: %w", name, err)
		}
		result[name] = d
	}
	return result, nil
}

func buildClientOptions(appName string, config c.DatabaseConfig) (*options.ClientOptions, time.Duration, error) {
	timeouts, err := parseTimeouts(config)
	if err != nil {
		return nil, 0, err
	}

	clientOptions := options.Client().ApplyURI(buildURI(config)).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(config.MinPoolSize)
	clientOptions.SetMaxPoolSize(config.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(timeouts["connect_idle_timeout"])
	// 超时限制
	clientOptions.SetConnectTimeout(timeouts["connect_timeout"])
	clientOptions.SetSocketTimeout(timeouts["socket_timeout"])
	clientOptions.SetHeartbeatInterval(timeouts["heartbeat"])
	if config.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s #%d", evt.Address, evt.ConnectionID)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s #%d (%s)", evt.Address, evt.ConnectionID, evt.Reason)
			}
		},
	})
	return clientOptions, timeouts["operation_timeout"], nil
}

// ConnectDatabase 建立连接并验证可用, 调用方负责注册 DBCloseCallback
func ConnectDatabase(ctx context.Context, config c.Config) (*mongo.Client, time.Duration, error) {
	logger.DebugF("Connecting to database %s:%d...", config.Database.Host, config.Database.Port)

	clientOptions, operationTimeout, err := buildClientOptions(config.AppName, config.Database)
	if err != nil {
		return nil, 0, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, 0, fmt.Errorf("error occured while pinging database: %w", err)
	}

	logger.InfoF("Connected to database %s", config.Database.Database)
	return client, operationTimeout, nil
}
