package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/agri-support-service/internal/imagestore"
)

type FileHandler struct {
	images *imagestore.Store
}

func NewFileHandler(images *imagestore.Store) *FileHandler {
	return &FileHandler{images: images}
}

// Get serves an uploaded image by its stored name.
func (h *FileHandler) Get(c *gin.Context) {
	path, err := h.images.Path(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(path)
}
