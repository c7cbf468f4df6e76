package controller

import (
	"strconv"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/pkg/serverutils"
	"paintroom-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IRoomController interface {
	RegisterRoutes(r fiber.Router)
	GetAll(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	ListStrokes(ctx *fiber.Ctx) error
	SubmitStroke(ctx *fiber.Ctx) error
	Start(ctx *fiber.Ctx) error
	ArchiveCredential(ctx *fiber.Ctx) error
	Finish(ctx *fiber.Ctx) error
	ThumbnailCredential(ctx *fiber.Ctx) error
	UpdateThumbnail(ctx *fiber.Ctx) error
	Presence(ctx *fiber.Ctx) error
}

type roomController struct {
	lobby      service.ILobbyService
	sessions   service.ISessionService
	strokes    service.IStrokeService
	archives   service.IArchiveService
	thumbnails service.IThumbnailService
	socket     fiber.Handler
}

func NewRoomController(
	lobby service.ILobbyService,
	sessions service.ISessionService,
	strokes service.IStrokeService,
	archives service.IArchiveService,
	thumbnails service.IThumbnailService,
	socket fiber.Handler,
) IRoomController {
	return &roomController{
		lobby:      lobby,
		sessions:   sessions,
		strokes:    strokes,
		archives:   archives,
		thumbnails: thumbnails,
		socket:     socket,
	}
}

func (c *roomController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/rooms")
	h.Get("", c.GetAll)
	h.Get(":id", c.Show)
	h.Get(":id/strokes", c.ListStrokes)
	h.Post(":id/strokes", c.SubmitStroke)
	h.Post(":id/start", c.Start)
	h.Post(":id/archive/credential", c.ArchiveCredential)
	h.Post(":id/finish", c.Finish)
	h.Post(":id/thumbnail/credential", c.ThumbnailCredential)
	h.Post(":id/thumbnail", c.UpdateThumbnail)
	h.Get(":id/presence", c.Presence)
	if c.socket != nil {
		h.Get(":id/ws", c.socket)
	}
}

func roomID(ctx *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid room id")
	}
	return id, nil
}

func (c *roomController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.lobby.List(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all rooms", res))
}

func (c *roomController) Show(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	res, err := c.sessions.Get(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show room", res))
}

func (c *roomController) ListStrokes(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var after *int64
	if raw := ctx.Query("after"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid after cursor")
		}
		after = &seq
	}

	res, err := c.strokes.ListSince(ctx.UserContext(), id, after)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list strokes", res))
}

func (c *roomController) SubmitStroke(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var req dto.SubmitStrokeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.strokes.Submit(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success submit stroke", res))
}

func (c *roomController) Start(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var req dto.StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessions.Start(ctx.UserContext(), id, req.Token)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session started", res))
}

func (c *roomController) ArchiveCredential(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var req dto.ArchiveCredentialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.archives.IssueCredential(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Archive credential issued", res))
}

func (c *roomController) Finish(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var req dto.FinishSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessions.Finish(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session finished", res))
}

func (c *roomController) ThumbnailCredential(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var req dto.ThumbnailCredentialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.thumbnails.IssueCredential(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Thumbnail credential issued", res))
}

func (c *roomController) UpdateThumbnail(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	var req dto.UpdateThumbnailRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.thumbnails.Update(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Thumbnail updated", res))
}

func (c *roomController) Presence(ctx *fiber.Ctx) error {
	id, err := roomID(ctx)
	if err != nil {
		return err
	}

	res, err := c.lobby.Presence(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get presence", res))
}
