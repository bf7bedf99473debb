package server

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"log/slog"
	"math"
	"net/http"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/regionblur/internal/compositor"
	"github.com/maauso/regionblur/internal/config"
)

// Preview answers POST /preview: it blurs one still frame synchronously so
// task parameters can be tuned before submitting a full video.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	tasks := config.ToRegionTasks(req.Tasks)
	if err := compositor.ValidateTasks(tasks); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	frame, status, code, msg := decodeFrame(req.ImageBase64)
	if frame == nil {
		writeError(w, status, msg, code)
		return
	}

	frameIndex := int(math.Round(req.Time * req.FPS))
	if req.FrameIndex != nil {
		frameIndex = *req.FrameIndex
	}
	applied := compositor.ProcessFrame(frame, frameIndex, req.FPS, tasks)

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		h.requestLogger(r).Error("encode preview", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to encode preview", "PREVIEW_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		PNGBase64:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		FrameIndex:     frameIndex,
		RegionsApplied: applied,
	})
}

// decodeFrame turns a base64 PNG or JPEG into an RGBA frame. On failure the
// frame is nil and the remaining values describe the error response.
func decodeFrame(b64 string) (frame *image.RGBA, status int, code, msg string) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, http.StatusBadRequest, "INVALID_IMAGE", "invalid base64 image data"
	}
	if mt := mimetype.Detect(data); !mt.Is("image/png") && !mt.Is("image/jpeg") {
		return nil, http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE", "image must be PNG or JPEG, got " + mt.String()
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, http.StatusBadRequest, "INVALID_IMAGE", "failed to decode image"
	}
	return compositor.ToRGBA(img), 0, "", ""
}
