package http

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/marketlens/client/internal/domain"
)

// imageFolders are the dataset folders that may be served
var imageFolders = map[string]bool{
	"train_images": true,
	"test_images":  true,
}

// ImageObserver records served image requests
type ImageObserver interface {
	ObserveImage(code int, bytes int64)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	datasetDir string
	observer   ImageObserver
}

// NewHandler creates a media handler serving images under datasetDir. observer may be nil.
func NewHandler(datasetDir string, observer ImageObserver) *Handler {
	return &Handler{
		datasetDir: datasetDir,
		observer:   observer,
	}
}

// HealthCheck returns the health status of the media server
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "marketlens-media",
		"dataset_dir": h.datasetDir,
	})
}

// StorageInfo reports local storage so clients resolve images against this server
func (h *Handler) StorageInfo(c *gin.Context) {
	c.JSON(http.StatusOK, domain.StorageInfo{StorageType: "local"})
}

// ServeImage serves /:folder/:name from the dataset directory
func (h *Handler) ServeImage(c *gin.Context) {
	folder := c.Param("folder")
	name := c.Param("name")

	if !imageFolders[folder] {
		h.notFound(c, "invalid folder")
		return
	}
	if !safeName(name) {
		h.notFound(c, "not found")
		return
	}

	path := filepath.Join(h.datasetDir, folder, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Media] Failed to stat %s: %v", path, err)
		}
		h.notFound(c, "not found")
		return
	}

	c.Header("Content-Type", contentType(path))
	c.File(path)
	h.observe(c.Writer.Status(), info.Size())
}

func (h *Handler) notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"error": message})
	h.observe(http.StatusNotFound, 0)
}

func (h *Handler) observe(code int, bytes int64) {
	if h.observer != nil {
		h.observer.ObserveImage(code, bytes)
	}
}

// safeName rejects anything that is not a plain file name
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}

// contentType guesses by extension, then by content, then assumes JPEG
func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	if detected, err := mimetype.DetectFile(path); err == nil && detected.String() != "application/octet-stream" {
		return detected.String()
	}
	return domain.DefaultImageMediaType
}
