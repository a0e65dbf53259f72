package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeUnits = []struct {
	suffix string
	unit   time.Duration
}{
	// ms 必须排在 m 与 s 之前
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseStringTime 解析形如 "10s" "5m" "2d" 的时长字符串, 大小写不敏感
func ParseStringTime(timeString string) (time.Duration, error) {
	value := strings.ToLower(strings.TrimSpace(timeString))
	if value == "" {
		return 0, fmt.Errorf("empty time string")
	}
	for _, u := range timeUnits {
		number, found := strings.CutSuffix(value, u.suffix)
		if !found {
			continue
		}
		n, err := strconv.Atoi(number)
		if err != nil {
			return 0, fmt.Errorf("invalid time string %q: %w", timeString, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative time string %q", timeString)
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("invalid time format: %s", timeString)
}

// MustParseStringTime 用于内置默认值, 解析失败或结果为 0 时返回 fallback
func MustParseStringTime(timeString string, fallback time.Duration) time.Duration {
	d, err := ParseStringTime(timeString)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
