package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gatewatch/internal/service"
)

const (
	defaultListLimit = 100
	// defaultSimulatedPlate is used when plate_text is absent. An explicit
	// empty value simulates an unreadable plate.
	defaultSimulatedPlate = "ABC123"
)

type Handler struct {
	gateService *service.GateService
	log         zerolog.Logger
}

func NewHandler(gateService *service.GateService, log zerolog.Logger) *Handler {
	return &Handler{
		gateService: gateService,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/api/v1")
	{
		public.GET("/events", h.listEvents)
		public.GET("/events/:id", h.getEvent)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/simulate", h.simulate)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listEvents(c *gin.Context) {
	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := parseInt(l)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("limit must be an integer"))
			return
		}
		limit = parsed
	}

	records, err := h.gateService.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) getEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid event id"))
		return
	}

	record, err := h.gateService.GetEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse("event not found"))
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(record))
}

func (h *Handler) simulate(c *gin.Context) {
	subject := strings.TrimSpace(c.DefaultQuery("subject", "vehicle"))
	plate := strings.TrimSpace(c.DefaultQuery("plate_text", defaultSimulatedPlate))

	id, event, err := h.gateService.Simulate(c.Request.Context(), subject, plate)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Int64("event_id", id).
		Str("subject", string(event.Subject)).
		Str("arrival", string(event.Arrival)).
		Str("plate", event.Plate()).
		Msg("simulated event")

	c.JSON(http.StatusCreated, gin.H{
		"result": "sent",
		"id":     id,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
