package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanerRunsInReverseOrder(t *testing.T) {
	c := NewCleanerWithTimeout(time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string, err error) Callable {
		return CallableFunc(func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		})
	}

	c.Add(record("database", nil))
	c.Add(record("http", errors.New("already closed")))
	c.Init(record("logger", nil))

	c.Shutdown()
	c.Shutdown()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cleaner did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, []string{"http", "database", "logger"}, order)

	// 清理开始后注册的回调被忽略
	c.Add(record("late", nil))
	assert.Len(t, c.cleaners, 2)
}
