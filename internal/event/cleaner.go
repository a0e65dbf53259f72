package event

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
)

type Callable interface {
	Invoke(ctx context.Context) error
}

// CallableFunc 让普通函数满足 Callable
type CallableFunc func(ctx context.Context) error

func (f CallableFunc) Invoke(ctx context.Context) error {
	return f(ctx)
}

type Cleaner struct {
	cleaners       []Callable
	mu             sync.Mutex
	initOnce       sync.Once
	cleanOnce      sync.Once
	cleaning       bool
	loggerShutdown Callable
	timeout        time.Duration
	trigger        chan struct{}
	done           chan struct{}
}

var cleanerInstance = NewCleanerWithTimeout(10 * time.Second)

// NewCleaner 返回进程级的清理器
func NewCleaner() *Cleaner {
	return cleanerInstance
}

func NewCleanerWithTimeout(timeout time.Duration) *Cleaner {
	return &Cleaner{
		timeout: timeout,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *Cleaner) Add(callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning {
		logger.Debug("Cleaner is already shutting down, ignoring new cleaner")
		return
	}
	c.cleaners = append(c.cleaners, callable)
}

// Init 监听中断信号, 收到信号或调用 Shutdown 后按注册的逆序执行清理
func (c *Cleaner) Init(loggerShutdown Callable) {
	c.initOnce.Do(func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		c.loggerShutdown = loggerShutdown

		go func() {
			defer stop()
			select {
			case <-ctx.Done():
				logger.Info("Received interrupt signal, shutting down")
			case <-c.trigger:
				logger.Info("Shutdown requested")
			}
			c.clean()
		}()
	})
}

// Shutdown 主动触发清理流程, 可重复调用
func (c *Cleaner) Shutdown() {
	c.cleanOnce.Do(func() {
		close(c.trigger)
	})
}

// Done 在全部清理完成后关闭
func (c *Cleaner) Done() <-chan struct{} {
	return c.done
}

func (c *Cleaner) clean() {
	defer close(c.done)

	c.mu.Lock()
	c.cleaning = true
	cleanersCopy := make([]Callable, len(c.cleaners))
	copy(cleanersCopy, c.cleaners)
	c.mu.Unlock()

	logger.DebugF("Starting cleanup of %d registered functions", len(cleanersCopy))

	var errs []error
	// 后注册的先清理: HTTP 服务先于数据库关闭
	for i := len(cleanersCopy) - 1; i >= 0; i-- {
		callable := cleanersCopy[i]
		func() {
			logger.DebugF("Invoking cleaner #%d (%T)", i+1, callable)
			timeoutCtx, cancelFunc := context.WithTimeout(context.Background(), c.timeout)
			defer cancelFunc()
			if err := callable.Invoke(timeoutCtx); err != nil {
				logger.ErrorF("Cleaner #%d (%T) failed: %v", i+1, callable, err)
				errs = append(errs, err)
			}
		}()
	}

	if len(errs) > 0 {
		logger.ErrorF("%d errors occurred during cleanup", len(errs))
	} else {
		logger.Debug("All cleaners executed successfully")
	}
	logger.Info("Cleanup finished, server offline")

	if c.loggerShutdown == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.loggerShutdown.Invoke(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
	}
}
