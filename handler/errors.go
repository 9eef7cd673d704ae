package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chaos-io/avatarkit/face"
	"github.com/chaos-io/avatarkit/portrait"
	"github.com/chaos-io/avatarkit/rembg"
	"github.com/chaos-io/avatarkit/storage"
	"github.com/chaos-io/avatarkit/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("upload too large")
	errDownload   = errors.New("download failed")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, portrait.ErrInvalidGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, face.ErrNoFace), errors.Is(err, storage.ErrInvalidName):
		return http.StatusNotFound
	case errors.Is(err, rembg.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, portrait.ErrUnsupportedColorMode),
		errors.Is(err, util.ErrNotAnImage),
		errors.Is(err, rembg.ErrUnknownModel),
		errors.Is(err, util.ErrDownloadSize),
		errors.Is(err, errDownload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func detailOf(err error) string {
	switch {
	case errors.Is(err, rembg.ErrUnknownModel):
		return fmt.Sprintf("%v; available models: %v", err, rembg.Models())
	case errors.Is(err, face.ErrNoFace):
		return "no face found in the image"
	}
	return err.Error()
}

// abort writes {"detail": ...} with the mapped status.
func abort(c *gin.Context, err error) {
	status := statusOf(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		util.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detailOf(err)})
}
