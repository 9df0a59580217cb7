package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/geocoder89/chatauth/internal/upload"
	"github.com/gin-gonic/gin"
)

type AvatarReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// MediaHandler serves avatars stored in the local blob bucket. Deployments
// that upload to S3 point clients at the bucket instead.
type MediaHandler struct {
	avatars AvatarReader
}

func NewMediaHandler(avatars AvatarReader) *MediaHandler {
	return &MediaHandler{avatars: avatars}
}

func (h *MediaHandler) Get(ctx *gin.Context) {
	r, contentType, err := h.avatars.Open(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		if errors.Is(err, upload.ErrObjectNotFound) {
			RespondError(ctx, http.StatusNotFound, "not_found", "Media not found", nil)
			return
		}
		RespondInternal(ctx, "Could not read media")
		return
	}
	defer r.Close()

	ctx.DataFromReader(http.StatusOK, -1, contentType, r, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
	})
}
