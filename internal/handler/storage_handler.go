package handler

import (
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/pkg/serverutils"
	"paintroom-be/internal/storage"

	"github.com/gofiber/fiber/v2"
)

// StorageHandler receives uploads for the local blob driver. Clients reach it
// only through URLs signed by LocalStore.SignedUploadURL.
type StorageHandler struct {
	store  *storage.LocalStore
	logger logger.ILogger
}

func NewStorageHandler(store *storage.LocalStore, log logger.ILogger) *StorageHandler {
	return &StorageHandler{store: store, logger: log}
}

func (h *StorageHandler) Upload(c *fiber.Ctx) error {
	objectPath := c.Params("*")
	body := c.Body()

	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse{Message: "Missing token"})
	}

	claims, err := h.store.VerifyUpload(token, objectPath, int64(len(body)))
	if err != nil {
		h.logger.Warn("StorageHandler", "Upload rejected", map[string]interface{}{
			"path":  objectPath,
			"size":  len(body),
			"error": err.Error(),
		})
		return c.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponse{Message: "Upload not allowed"})
	}

	if err := h.store.Put(c.UserContext(), objectPath, claims.ContentType, body); err != nil {
		h.logger.Error("StorageHandler", "Failed to store upload", map[string]interface{}{"path": objectPath, "error": err.Error()})
		return c.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse{Message: "Failed to store file"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
