package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/utils"
)

// UploadVideo 直接上传媒体文件，表单字段为 file
func (h *Handler) UploadVideo(c *gin.Context) {
	file, cleanup, err := saveUpload(c, "file")
	defer cleanup()
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Invalid file upload", err))
		return
	}
	if file == nil {
		fail(c, apperr.Validation("No file uploaded"))
		return
	}
	if h.Media == nil {
		fail(c, apperr.Internal("Error uploading media"))
		return
	}

	up, err := h.Media.UploadFile(c.Request.Context(), file.Path, file.ContentType)
	if err != nil {
		h.Log.Error().Err(err).Msg("upload media failed")
		fail(c, apperr.Wrap(apperr.KindInternal, "Error uploading media", err))
		return
	}
	utils.Success(c, "Media uploaded successfully", up)
}
