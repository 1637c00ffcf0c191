package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shannn1/echolab-final/logger"
)

// ServeGeneratedHandler streams a generated clip out of object storage, for
// deployments where the MinIO endpoint is not directly reachable by clients.
// The object name is the request path without its leading slash, so
// `/generated/<name>` maps onto the same keys UploadAudio writes.
func (h *APIHandler) ServeGeneratedHandler(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeMessage(w, http.StatusInternalServerError, "Object storage not available")
		return
	}

	objectPath := strings.TrimPrefix(r.URL.Path, "/")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := h.store.GetObject(ctx, objectPath)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	defer object.Close()

	contentType := "application/octet-stream"
	if strings.HasSuffix(objectPath, ".mp3") {
		contentType = "audio/mpeg"
	} else if strings.HasSuffix(objectPath, ".wav") {
		contentType = "audio/wav"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("[ServeGenerated] streaming object failed",
			logger.String("object", objectPath),
			logger.ErrorField(err))
	}
}
