package controllers

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"chat-server/middlewares"
	"chat-server/services"
	"chat-server/utils"
)

var allowedMediaTypes = []string{"image/", "video/", "audio/", "application/"}

// UploadController stores attachment files and serves them back.
type UploadController struct {
	Storage *services.Storage
}

// Upload accepts a multipart "file" with a "type" attachment kind and
// returns the pathname to reference from a message.
func (h *UploadController) Upload(c *gin.Context) {
	kind := c.PostForm("type")
	fh, err := c.FormFile("file")
	if err != nil {
		utils.RespondError(c, utils.Validation("file", "file is required"))
		return
	}
	if fh.Size > services.MaxUploadSize {
		utils.RespondError(c, utils.Validation("file", "file is larger than 50MB"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		utils.RespondError(c, utils.Internal(err, "open upload"))
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		utils.RespondError(c, utils.Internal(err, "detect content type"))
		return
	}
	if !allowedMedia(mtype.String()) {
		utils.RespondError(c, utils.Validation("file", "unsupported file type "+mtype.String()))
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		utils.RespondError(c, utils.Internal(err, "rewind upload"))
		return
	}

	filename := fh.Filename
	if path.Ext(filename) == "" {
		filename += mtype.Extension()
	}
	pathname, err := h.Storage.Put(kind, filename, f)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"user_id": middlewares.MustUserID(c), "pathname": pathname, "size": fh.Size, "mime": mtype.String(),
	}).Info("file uploaded")
	utils.RespondCreated(c, gin.H{
		"pathname": pathname,
		"url":      h.Storage.URL(pathname),
		"type":     kind,
		"filename": fh.Filename,
		"size":     fh.Size,
		"mimeType": mtype.String(),
	})
}

// Serve streams a stored file.
func (h *UploadController) Serve(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")
	f, err := h.Storage.Open(name)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		utils.RespondError(c, utils.Internal(err, "stat file"))
		return
	}
	http.ServeContent(c.Writer, c.Request, path.Base(name), st.ModTime(), f)
}

func allowedMedia(mime string) bool {
	for _, prefix := range allowedMediaTypes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
