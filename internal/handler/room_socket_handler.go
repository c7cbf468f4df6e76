package handler

import (
	"strconv"
	"strings"

	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/pkg/serverutils"
	"paintroom-be/internal/service"
	internalWS "paintroom-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const maxIdentityLength = 64

type RoomSocketHandler struct {
	sessions service.ISessionService
	hub      *internalWS.Hub
	logger   logger.ILogger
}

func NewRoomSocketHandler(sessions service.ISessionService, hub *internalWS.Hub, log logger.ILogger) *RoomSocketHandler {
	return &RoomSocketHandler{
		sessions: sessions,
		hub:      hub,
		logger:   log,
	}
}

// ServeWs upgrades GET /rooms/:id/ws?user_id=&user_name= to a room socket.
func (h *RoomSocketHandler) ServeWs(c *fiber.Ctx) error {
	roomId, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse{Message: "Invalid room id"})
	}

	userId := strings.TrimSpace(c.Query("user_id"))
	userName := strings.TrimSpace(c.Query("user_name"))
	if userId == "" || len(userId) > maxIdentityLength || len(userName) > maxIdentityLength {
		return c.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse{Message: "user_id is required"})
	}
	if userName == "" {
		userName = userId
	}

	// unknown rooms are refused before the upgrade
	if _, err := h.sessions.Get(c.UserContext(), roomId); err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("RoomSocketHandler", "Starting room socket", map[string]interface{}{"room_id": roomId, "user_id": userId})
			internalWS.ServeWs(h.hub, conn, roomId, userId, userName)
			h.logger.Info("RoomSocketHandler", "Room socket ended", map[string]interface{}{"room_id": roomId, "user_id": userId})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
