package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codelab-api/internal/middleware"
	"github.com/noah-isme/codelab-api/internal/service"
	"github.com/noah-isme/codelab-api/internal/utils"
)

// MonitorHandler wires the live lab monitoring endpoints including the
// websocket upgrade.
type MonitorHandler struct {
	service service.MonitorService
	logger  zerolog.Logger
}

// NewMonitorHandler creates a monitor handler instance.
func NewMonitorHandler(service service.MonitorService, logger zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		service: service,
		logger:  logger.With().Str("component", "monitor_handler").Logger(),
	}
}

// Register binds monitor routes under the provided lab-scoped router group.
func (h *MonitorHandler) Register(router fiber.Router) {
	router.Use("/monitor/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/monitor/ws", websocket.New(h.handleConnection))
	router.Get("/monitor/activities", h.activities)
}

func (h *MonitorHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	labID := strings.TrimSpace(conn.Params("labID"))
	if labID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "lab id required"))
		_ = conn.Close()
		return
	}

	role := fmt.Sprint(conn.Locals("user_role"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.MonitorConnectionOptions{
		LabID:   labID,
		UserID:  userID,
		Role:    role,
		Context: baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Str("lab_id", labID).Str("role", role).Msg("monitor websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Uint("user_id", userID).Str("lab_id", labID).Msg("monitor websocket disconnected")
}

// activities serves the same aggregated state the websocket broadcasts, for
// dashboards that poll instead of holding a socket open.
func (h *MonitorHandler) activities(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	return utils.SendSuccess(c, "lab activities", h.service.Snapshot(c.Params("labID")))
}

func websocketUserID(conn *websocket.Conn) uint {
	switch v := conn.Locals("user_id").(type) {
	case float64:
		return uint(v)
	case uint:
		return v
	case int:
		return uint(v)
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return uint(parsed)
	}
	return 0
}
