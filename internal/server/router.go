package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/floor"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	deviceContextKey         = "floorboard_device"
	defaultHeartbeatInterval = 15 * time.Second
)

var (
	errMissingFloorService  = errors.New("floor service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator checks staff device tokens.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP handler. Tokens may be nil, in which case mutating
// routes are open to any client on the floor network.
type Dependencies struct {
	FloorService      *floor.Service
	Tokens            TokenValidator
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
	AllowedOrigins    []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.FloorService == nil {
		return nil, errMissingFloorService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		floorService: deps.FloorService,
		tokens:       deps.Tokens,
		realtime:     deps.Realtime,
		logger:       logger,
		heartbeat:    heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/floor", handler.handleFloor)
	router.GET("/floor/stream", handler.handleFloorStream)
	router.GET("/last-orders", handler.handleLastOrders)
	router.GET("/tables/:id", handler.handleGetTable)
	router.GET("/captures/current", handler.handleCurrentCapture)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/tables/:id/advance", handler.handleAdvance)
	protected.POST("/captures/:capture_id/selection", handler.handleSelectPlan)
	protected.POST("/captures/:capture_id/confirm", handler.handleConfirmOrder)
	protected.POST("/captures/:capture_id/cancel", handler.handleCancelCapture)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	floorService *floor.Service
	tokens       TokenValidator
	realtime     *RealtimeDispatcher
	logger       *zap.Logger
	heartbeat    time.Duration
}

type tablePayload struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	Food             string `json:"food,omitempty"`
	Drink            string `json:"drink,omitempty"`
	LastOrderAtMs    *int64 `json:"lo_time_ms,omitempty"`
	StateStartedAtMs *int64 `json:"state_start_time_ms,omitempty"`
}

func newTablePayload(id floor.TableID, record floor.TableRecord) tablePayload {
	payload := tablePayload{
		ID:    id.String(),
		State: string(record.State),
		Food:  string(record.Food),
		Drink: string(record.Drink),
	}
	if record.HasLastOrder() {
		millis := record.LastOrderAt.UnixMilli()
		payload.LastOrderAtMs = &millis
	}
	if record.HasStateTimer() {
		millis := record.StateStartedAt.UnixMilli()
		payload.StateStartedAtMs = &millis
	}
	return payload
}

type advanceResponsePayload struct {
	Table           tablePayload       `json:"table"`
	CaptureRequired bool               `json:"capture_required"`
	Capture         *floor.CaptureView `json:"capture,omitempty"`
	PersistWarning  string             `json:"persist_warning,omitempty"`
}

type selectionRequestPayload struct {
	Group string `json:"group"`
	Plan  string `json:"plan"`
}

type lastOrderPayload struct {
	TableID    string `json:"table_id"`
	DeadlineMs int64  `json:"deadline_ms"`
	Display    string `json:"display"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleFloor(c *gin.Context) {
	c.JSON(http.StatusOK, h.floorService.Frame())
}

func (h *httpHandler) handleLastOrders(c *gin.Context) {
	frame := h.floorService.Frame()
	response := make([]lastOrderPayload, 0, len(frame.LastOrders))
	for _, entry := range frame.LastOrders {
		response = append(response, lastOrderPayload{
			TableID:    entry.TableID.String(),
			DeadlineMs: entry.Deadline.UnixMilli(),
			Display:    entry.Display,
		})
	}
	c.JSON(http.StatusOK, gin.H{"last_orders": response})
}

func (h *httpHandler) handleGetTable(c *gin.Context) {
	id := floor.TableID(strings.TrimSpace(c.Param("id")))
	record, err := h.floorService.Table(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTablePayload(id, record))
}

func (h *httpHandler) handleAdvance(c *gin.Context) {
	id := floor.TableID(strings.TrimSpace(c.Param("id")))
	result, err := h.floorService.Advance(c.Request.Context(), id)
	warning := ""
	if err != nil {
		if !floor.IsPersistError(err) {
			h.writeError(c, err)
			return
		}
		warning = persistWarning(err)
		h.logger.Warn("floor snapshot not persisted", zap.String("table", id.String()), zap.Error(err))
	}

	h.logger.Debug("table clicked",
		zap.String("table", id.String()),
		zap.String("state", string(result.Record.State)),
		zap.String("device", deviceFromContext(c)))

	response := advanceResponsePayload{
		Table:           newTablePayload(id, result.Record),
		CaptureRequired: result.Step == floor.StepCaptureRequired,
		Capture:         result.Capture,
		PersistWarning:  warning,
	}
	status := http.StatusOK
	if response.CaptureRequired {
		status = http.StatusAccepted
	}
	c.JSON(status, response)
}

func (h *httpHandler) handleCurrentCapture(c *gin.Context) {
	capture, ok := h.floorService.CurrentCapture()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture_not_found"})
		return
	}
	c.JSON(http.StatusOK, capture)
}

func (h *httpHandler) handleSelectPlan(c *gin.Context) {
	var request selectionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	group, err := floor.ParseSelectionGroup(request.Group)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_group"})
		return
	}
	plan, err := floor.ParsePlan(request.Plan)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plan"})
		return
	}

	capture, err := h.floorService.SelectPlan(c.Param("capture_id"), group, plan)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, capture)
}

func (h *httpHandler) handleConfirmOrder(c *gin.Context) {
	result, err := h.floorService.ConfirmOrder(c.Request.Context(), c.Param("capture_id"))
	warning := ""
	if err != nil {
		if !floor.IsPersistError(err) {
			h.writeError(c, err)
			return
		}
		warning = persistWarning(err)
		h.logger.Warn("floor snapshot not persisted", zap.String("table", result.TableID.String()), zap.Error(err))
	}

	h.logger.Info("order confirmed",
		zap.String("table", result.TableID.String()),
		zap.String("food", string(result.Record.Food)),
		zap.String("drink", string(result.Record.Drink)),
		zap.String("device", deviceFromContext(c)))

	c.JSON(http.StatusOK, advanceResponsePayload{
		Table:          newTablePayload(result.TableID, result.Record),
		PersistWarning: warning,
	})
}

func (h *httpHandler) handleCancelCapture(c *gin.Context) {
	if err := h.floorService.CancelCapture(c.Param("capture_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleFloorStream(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream_unavailable"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case frame, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(realtimeEventFloor, frame)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": tick.UTC().Unix()})
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if h.tokens == nil {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	device, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("device token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(deviceContextKey, device)
	c.Next()
}

func deviceFromContext(c *gin.Context) string {
	value, ok := c.Get(deviceContextKey)
	if !ok {
		return ""
	}
	device, _ := value.(string)
	return device
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, floor.ErrUnknownTable):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_table"})
	case errors.Is(err, floor.ErrCaptureNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "capture_not_found"})
	case errors.Is(err, floor.ErrIncompleteOrder):
		c.JSON(http.StatusConflict, gin.H{"error": "selection_incomplete"})
	case errors.Is(err, floor.ErrNotAwaitingOrder):
		c.JSON(http.StatusConflict, gin.H{"error": "not_awaiting_order"})
	case errors.Is(err, floor.ErrCaptureClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "capture_closed"})
	case errors.Is(err, floor.ErrUnknownPlan), errors.Is(err, floor.ErrUnknownGroup):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_selection"})
	default:
		h.logger.Error("floor request failed", zap.Error(err))
		response := gin.H{"error": "internal_error"}
		var serviceErr *floor.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
	}
}

func persistWarning(err error) string {
	var serviceErr *floor.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return "persist_failed"
}
