// Package api provides the REST API server for hum2midi
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/james-see/hum2midi/pkg/transcriber"
	"github.com/james-see/hum2midi/pkg/wavfile"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title hum2midi API
// @version 1.0
// @description API for transcribing hummed or tapped WAV takes into MIDI
// @host localhost:8080
// @BasePath /api/v1

// MaxUploadSize bounds the request body of a transcription
const MaxUploadSize = 64 << 20

const requestIDHeader = "X-Request-ID"

// Server serves the transcription API
type Server struct {
	router        *gin.Engine
	logger        *zap.Logger
	settings      transcriber.Settings
	maxUploadSize int64
}

// NewServer creates a Server whose transcriptions start from settings
func NewServer(settings transcriber.Settings, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:        gin.New(),
		logger:        logger,
		settings:      settings,
		maxUploadSize: MaxUploadSize,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.MaxMultipartMemory = MaxUploadSize
	r.Use(gin.Recovery(), s.requestLogger())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/settings", s.getSettings)
		v1.POST("/transcribe", s.handleTranscribe)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{requestIDHeader, "X-Estimated-BPM", "X-Bars", "X-Notes", "Content-Disposition"},
	})
	return c.Handler(s.router)
}

// StartServer starts the API server on the specified port
func StartServer(port int, settings transcriber.Settings, logger *zap.Logger) error {
	s := NewServer(settings, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

// requestLogger tags every request with an id and logs it when done
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "hum2midi",
	})
}

// getSettings godoc
// @Summary Default transcription settings
// @Description Returns the settings used when no query override is given
// @Tags info
// @Produce json
// @Success 200 {object} transcriber.Settings
// @Router /api/v1/settings [get]
func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings)
}

// handleTranscribe godoc
// @Summary Transcribe a WAV take to MIDI
// @Description Upload a mono or stereo PCM WAV file and receive a MIDI file
// @Tags transcribe
// @Accept multipart/form-data
// @Produce audio/midi
// @Param file formData file true "WAV file to transcribe"
// @Param on query number false "Onset threshold"
// @Param off query number false "Offset threshold"
// @Param min_bpm query number false "Minimum tempo"
// @Param target_bpm query number false "Output tempo"
// @Param note query integer false "MIDI note number"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/transcribe [post]
func (s *Server) handleTranscribe(c *gin.Context) {
	id := c.GetString("request_id")
	log := s.logger.With(zap.String("request_id", id))

	if c.Request.ContentLength > s.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload is too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize)

	settings, err := s.overrides(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload is too large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload is too large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if wavfile.DetectFormatFromContent(data) != wavfile.FormatWAV {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Upload is not a WAV file"})
		return
	}

	sound, err := wavfile.LoadReader(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tr := transcriber.New(transcriber.WithSettings(settings), transcriber.WithLogger(log))
	res, err := tr.Transcribe(sound.Mono(), sound.SampleRate())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	result, err := res.Tracks.Bytes()
	if err != nil {
		log.Error("error writing MIDI", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", outputName(header.Filename)))
	c.Header("X-Estimated-BPM", strconv.FormatFloat(res.Tempo.BPM, 'f', 2, 64))
	c.Header("X-Bars", strconv.Itoa(res.Tempo.Bars))
	c.Header("X-Notes", strconv.Itoa(len(res.Events)))
	c.Data(http.StatusOK, "audio/midi", result)
}

// overrides applies the query parameters to the server settings
func (s *Server) overrides(c *gin.Context) (transcriber.Settings, error) {
	settings := s.settings
	floats := []struct {
		key string
		dst *float64
	}{
		{"on", &settings.OnThreshold},
		{"off", &settings.OffThreshold},
		{"min_bpm", &settings.MinBPM},
		{"target_bpm", &settings.TargetBPM},
	}
	for _, f := range floats {
		v, ok := c.GetQuery(f.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return settings, fmt.Errorf("invalid %s: %q", f.key, v)
		}
		*f.dst = parsed
	}
	if v, ok := c.GetQuery("note"); ok {
		note, err := strconv.ParseUint(v, 10, 7)
		if err != nil {
			return settings, fmt.Errorf("invalid note: %q", v)
		}
		settings.Note = uint8(note)
	}
	return settings, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, transcriber.ErrInvalidThresholds),
		errors.Is(err, transcriber.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, transcriber.ErrPatternTooShort),
		errors.Is(err, transcriber.ErrDegenerateTempo),
		errors.Is(err, transcriber.ErrTempoOutOfRange),
		errors.Is(err, transcriber.ErrEmptyInput),
		errors.Is(err, transcriber.ErrInvalidSampleRate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// outputName swaps the upload's extension for .mid
func outputName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "transcribed.mid"
	}
	return base + ".mid"
}
