package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/Brownie44l1/road-detect/internal/detect"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	Logger         *logrus.Logger
}

type Handler struct {
	detector     *detect.Service
	maxBodyBytes int64
	upgrader     websocket.Upgrader
}

type errorBody struct {
	Detail string `json:"detail"`
}

// detectBody mirrors detect.DetectionRequest with a pointer so a missing
// image can be told apart from an empty one.
type detectBody struct {
	Image *string          `json:"image"`
	GPS   *detect.GPSPoint `json:"gps"`
}

func NewHandler(detector *detect.Service, opts Options) *Handler {
	allowed := originSet(opts.AllowedOrigins)
	return &Handler{
		detector:     detector,
		maxBodyBytes: opts.MaxBodyBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// NewRouter wires the handlers, CORS and request logging into a gin engine.
func NewRouter(detector *detect.Service, opts Options) *gin.Engine {
	h := NewHandler(detector, opts)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestLogger(opts.Logger), gin.Recovery(), corsMiddleware(opts.AllowedOrigins))

	r.GET("/health", h.Health)
	r.POST("/detect", h.Detect)
	r.GET("/ws", h.Stream)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Detect(c *gin.Context) {
	log := logFrom(c)

	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	var body detectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.WithError(err).Warn("Request body too large")
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{Detail: "Request body too large"})
			return
		}
		log.WithError(err).Warn("Invalid request body")
		c.JSON(http.StatusUnprocessableEntity, errorBody{Detail: "Invalid request body"})
		return
	}
	if body.Image == nil {
		log.Warn("Request without image")
		c.JSON(http.StatusUnprocessableEntity, errorBody{Detail: "Invalid request body"})
		return
	}

	req := detect.DetectionRequest{Image: *body.Image, GPS: body.GPS}
	if req.GPS != nil {
		log = log.WithFields(logrus.Fields{"lat": req.GPS.Latitude, "lon": req.GPS.Longitude})
	}

	result, err := h.detector.Detect(req)
	if err != nil {
		status, detail := errorResponse(err)
		log.WithError(err).WithField("status", status).Error(detail)
		c.JSON(status, errorBody{Detail: detail})
		return
	}

	log.WithField("detections", len(result.Detections)).Debug("Frame processed")
	c.JSON(http.StatusOK, result)
}

// errorResponse maps a service error to a status code and a static phrase
// safe to show to clients.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, detect.ErrInvalidImage):
		return http.StatusBadRequest, "Invalid image payload"
	case errors.Is(err, detect.ErrModelUnavailable):
		if errors.Is(err, fs.ErrNotExist) {
			return http.StatusInternalServerError, "Model file not found"
		}
		return http.StatusInternalServerError, "Failed to load model"
	case errors.Is(err, detect.ErrInferenceFailure):
		return http.StatusInternalServerError, "Inference failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
