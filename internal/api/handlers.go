package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scribeaudio/scribed/internal/service"
	"github.com/scribeaudio/scribed/internal/source"
	"github.com/scribeaudio/scribed/internal/task"
	"github.com/scribeaudio/scribed/internal/transcriber"
	"github.com/scribeaudio/scribed/internal/validate"
	"github.com/scribeaudio/scribed/internal/version"
)

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// requestOptions are the transcription knobs accepted by the JSON endpoints.
// Absent fields fall back to the configured defaults.
type requestOptions struct {
	Language         string   `json:"language"`
	Temperature      *float64 `json:"temperature"`
	Prompt           string   `json:"prompt"`
	ReturnTimestamps *bool    `json:"return_timestamps"`
}

func (o requestOptions) params() service.Params {
	return service.Params{
		Language:       o.Language,
		Temperature:    o.Temperature,
		Prompt:         o.Prompt,
		WithTimestamps: o.ReturnTimestamps,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg)
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": s.modelList()})
}

func (s *Server) handleModel(c *gin.Context) {
	id := c.Param("id")
	for _, m := range s.modelList() {
		if m.ID == id {
			c.JSON(http.StatusOK, m)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "model not found: " + id})
}

func (s *Server) modelList() []ModelInfo {
	if cached, ok := s.models.Get("models"); ok {
		return cached
	}

	names := transcriber.ModelNames()
	list := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		list = append(list, ModelInfo{ID: name, Object: "model", OwnedBy: "scribed"})
	}

	s.models.Set("models", list)
	return list
}

func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse multipart form"})
		return
	}

	src := source.NewUpload(form, "file", s.maxBytes)
	s.runSync(c, src, s.formParams(c))
}

func (s *Server) handleURL(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
		requestOptions
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	src := source.NewRemote(req.URL, s.maxBytes, s.logger)
	s.runSync(c, src, req.params())
}

func (s *Server) handleBase64(c *gin.Context) {
	var req struct {
		File string `json:"file" binding:"required"`
		requestOptions
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	src := source.NewInline(req.File, s.maxBytes, s.logger)
	s.runSync(c, src, req.params())
}

func (s *Server) handleLocal(c *gin.Context) {
	var req struct {
		FilePath string `json:"file_path" binding:"required"`
		requestOptions
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_path is required"})
		return
	}

	resolved, err := validate.LocalPath(req.FilePath, s.cfg.Validation.AllowedDirectories)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file path is not allowed"})
		return
	}

	src := source.NewLocal(resolved, s.maxBytes)
	s.runSync(c, src, req.params())
}

// handleAsync stages the upload synchronously so input errors surface at
// submit time, then hands the staged file to a background task that owns its
// cleanup.
func (s *Server) handleAsync(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse multipart form"})
		return
	}

	src := source.NewUpload(form, "file", s.maxBytes)
	f, err := src.Fetch(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	if err := s.validator.Validate(f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	staged, err := s.scratch.Create(stagingSuffix(f.Name()))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := f.SaveTo(staged); err != nil {
		s.scratch.Release(staged)
		s.fail(c, err)
		return
	}

	params := s.formParams(c)
	name := f.Name()
	id := s.tracker.Submit(func(ctx context.Context) (any, error) {
		defer s.scratch.Release(staged)
		return s.svc.RunStaged(ctx, staged, name, params)
	})

	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": string(task.StatusPending)})
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	snapshot, err := s.tracker.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		s.fail(c, err)
		return
	}

	body := gin.H{"task_id": snapshot.ID, "status": string(snapshot.Status)}
	switch snapshot.Status {
	case task.StatusCompleted:
		body["result"] = snapshot.Result
	case task.StatusFailed:
		body["error"] = snapshot.Error
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) runSync(c *gin.Context, src source.Source, params service.Params) {
	resp, err := s.svc.Run(c.Request.Context(), src, params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// fail maps caller mistakes to 400 and everything else to an opaque 500.
func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrBadInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (s *Server) formParams(c *gin.Context) service.Params {
	params := service.Params{
		Language: c.PostForm("language"),
		Prompt:   c.PostForm("prompt"),
	}
	if v := c.PostForm("temperature"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params.Temperature = &f
		}
	}
	if v := c.PostForm("return_timestamps"); v != "" {
		b := parseBool(v)
		params.WithTimestamps = &b
	}
	return params
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "t", "yes", "y", "1":
		return true
	}
	return false
}

func stagingSuffix(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	return ".wav"
}
