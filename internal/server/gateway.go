package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/assets"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
)

const uploadField = "map"

type uploadResponse struct {
	URL string `json:"url"`
}

// handleMapUpload 保存地图图片并通知会话内的所有客户端
func (s *Server) handleMapUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field "+uploadField)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	contentType, reader, err := assets.Sniff(file)
	if err != nil {
		if errors.Is(err, assets.ErrNotImage) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := s.assets.Save(r.Context(), contentType, reader)
	if err != nil {
		logger.Error("Fail to store map upload", "session", sessionID, "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "fail to store upload")
		return
	}

	logger.Info("Map uploaded", "session", sessionID, "url", ref, "size", header.Size)
	s.engine.UpdateMap(sessionID, ref)
	writeJSON(w, http.StatusOK, uploadResponse{URL: ref})
}

// handleState 只读查询, 不存在的会话返回空快照且不会被创建
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot(r.PathValue("sessionId")))
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, contentType, err := s.assets.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.ErrorF("Fail to open asset %s, details: %v", name, err)
		writeError(w, http.StatusInternalServerError, "fail to open asset")
		return
	}
	defer func() {
		_ = body.Close()
	}()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, body); err != nil {
		logger.WarnF("Fail to stream asset %s, details: %v", name, err)
	}
}
