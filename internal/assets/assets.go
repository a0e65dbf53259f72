// Package assets 保存上传的地图图片, 并按名称读回
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

const URLPrefix = "/uploads/"

var (
	ErrNotFound = errors.New("asset not found")
	ErrNotImage = errors.New("asset is not an image")
)

// Store 资源存储; Save 返回交给客户端的引用, 形如 URLPrefix + name
type Store interface {
	Save(ctx context.Context, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Sniff 根据开头的字节判断类型, 返回的 reader 仍包含完整内容
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return contentType, nil, fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}
	return contentType, io.MultiReader(bytes.NewReader(head), r), nil
}

// Extension 图片类型对应的扩展名
func Extension(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return ""
}

// Ref 由文件名生成对外引用
func Ref(name string) string {
	return URLPrefix + name
}

// ValidName 拒绝可能越出资源目录的名称
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return path.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
