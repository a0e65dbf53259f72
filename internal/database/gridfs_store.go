package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/assets"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const contentTypeKey = "content_type"

// GridFSStore 将地图图片保存在 GridFS 中, 会话状态本身仍只在内存
type GridFSStore struct {
	bucket  *gridfs.Bucket
	timeout time.Duration
}

var _ assets.Store = (*GridFSStore)(nil)

// NewGridFSStore timeout 为单次读写的上限, 请求自带更早的截止时间时以请求为准
func NewGridFSStore(db *mongo.Database, bucketName string, timeout time.Duration) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("error occured while opening gridfs bucket %s: %w", bucketName, err)
	}
	return &GridFSStore{bucket: bucket, timeout: timeout}, nil
}

func (gs *GridFSStore) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := primitive.NewObjectID()
	name := id.Hex() + assets.Extension(contentType)
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: contentTypeKey, Value: contentType}})

	startTime := time.Now()
	stream, err := gs.bucket.OpenUploadStreamWithID(id, name, opts)
	if err != nil {
		return "", fmt.Errorf("database operation failed: %w", err)
	}
	if deadline, ok := operationDeadline(ctx, gs.timeout, startTime); ok {
		_ = stream.SetWriteDeadline(deadline)
	}
	if _, err := io.Copy(stream, contextReader{ctx: ctx, r: r}); err != nil {
		_ = stream.Abort()
		return "", fmt.Errorf("database operation failed: %w", err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("database operation failed: %w", err)
	}
	logger.DebugF("asset upload cost: %v", time.Since(startTime))
	return assets.Ref(name), nil
}

func (gs *GridFSStore) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	id, ok := ParseAssetID(name)
	if !ok {
		return nil, "", assets.ErrNotFound
	}
	stream, err := gs.bucket.OpenDownloadStream(id)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", assets.ErrNotFound
		}
		return nil, "", fmt.Errorf("database operation failed: %w", err)
	}
	if deadline, ok := operationDeadline(ctx, gs.timeout, time.Now()); ok {
		_ = stream.SetReadDeadline(deadline)
	}
	contentType := "application/octet-stream"
	if file := stream.GetFile(); file != nil && file.Metadata != nil {
		if value, ok := file.Metadata.Lookup(contentTypeKey).StringValueOK(); ok {
			contentType = value
		}
	}
	return stream, contentType, nil
}

// ParseAssetID 从 "<hex>.<ext>" 形式的名称中取出 ObjectID
func ParseAssetID(name string) (primitive.ObjectID, bool) {
	if !assets.ValidName(name) || len(name) < 24 {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(name[:24])
	if err != nil {
		return primitive.NilObjectID, false
	}
	if rest := name[24:]; rest != "" && rest[0] != '.' {
		return primitive.NilObjectID, false
	}
	return id, true
}

// operationDeadline 取请求截止时间与 now+timeout 中较早的一个
func operationDeadline(ctx context.Context, timeout time.Duration, now time.Time) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		limit := now.Add(timeout)
		if !ok || limit.Before(deadline) {
			return limit, true
		}
	}
	return deadline, ok
}

// contextReader 请求取消后停止读取上传内容
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
