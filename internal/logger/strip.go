package logger

import (
	"io"
	"regexp"
)

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*m")

// stripWriter 写入日志文件前去掉终端颜色转义序列
type stripWriter struct {
	w io.Writer
}

func (s stripWriter) Write(p []byte) (int, error) {
	if _, err := s.w.Write(ansiPattern.ReplaceAll(p, nil)); err != nil {
		return 0, err
	}
	return len(p), nil
}
