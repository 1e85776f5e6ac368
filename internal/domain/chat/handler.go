package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/websocket"
	"github.com/medconnect/medconnect/pkg/pagination"
)

type Handler struct {
	registry *Registry
	upgrader *websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(registry *Registry, upgrader *websocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{registry: registry, upgrader: upgrader, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// The socket answers anonymous senders with error frames, so it sits
	// outside RequireAuth.
	api.GET("/chat/rooms/:id/ws", h.Connect)

	g := api.Group("/chat", auth.RequireAuth())
	g.GET("/rooms", h.ListRooms)
	g.POST("/rooms", h.CreateRoom)
	g.GET("/rooms/:id", h.GetRoom)
	g.GET("/rooms/:id/messages", h.ListMessages)
	g.POST("/rooms/:id/messages", h.SendMessage)
	g.POST("/rooms/:id/mark-read", h.MarkRead)
}

func (h *Handler) ListRooms(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.registry.ListRooms(ctx, auth.CallerFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateRoom(c echo.Context) error {
	var in CreateRoomInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	room, err := h.registry.OpenRoom(ctx, auth.CallerFromContext(ctx), in.ParticipantID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	room, err := h.registry.GetRoom(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) ListMessages(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.registry.ListMessages(ctx, auth.CallerFromContext(ctx), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SendMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in SendMessageInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	m, err := h.registry.SendMessage(ctx, auth.CallerFromContext(ctx), id, in.Content)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	n, err := h.registry.MarkRead(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, MarkReadResult{Updated: n})
}

// errorFrame is sent to the offending connection only.
type errorFrame struct {
	Error string `json:"error"`
}

// Connect upgrades to the room socket. Participants receive every message
// sent to the room. Anonymous connections are accepted but subscribed to
// nothing; their frames are answered with an error.
func (h *Handler) Connect(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	// The request context ends when the handler returns; the socket
	// outlives it.
	ctx := context.WithoutCancel(c.Request().Context())
	caller := auth.CallerFromContext(ctx)

	var topics []string
	if caller.Authenticated() {
		if _, err := h.registry.GetRoom(ctx, caller, id); err != nil {
			return apperr.HTTP(err)
		}
		topics = append(topics, websocket.ChatTopic(id))
	}

	client := websocket.NewClient(caller.UserID, topics...)
	return h.upgrader.Serve(c, client, h.onFrame(ctx, caller, id))
}

func (h *Handler) onFrame(ctx context.Context, caller auth.Caller, roomID uuid.UUID) websocket.MessageFunc {
	hub := h.upgrader.Hub()
	return func(client *websocket.Client, data []byte) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error().Interface("panic", rec).Str("room_id", roomID.String()).Msg("chat frame panicked")
				hub.SendTo(client, errorFrame{Error: "Internal error."})
			}
		}()

		var in SendMessageInput
		if err := json.Unmarshal(data, &in); err != nil {
			hub.SendTo(client, errorFrame{Error: "Invalid JSON."})
			return
		}
		if _, err := h.registry.SendMessage(ctx, caller, roomID, in.Content); err != nil {
			hub.SendTo(client, errorFrame{Error: frameMessage(err)})
			if apperr.KindOf(err) == apperr.KindInternal {
				h.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("chat send failed")
			}
		}
	}
}

func frameMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		return e.Message
	}
	return "Internal error."
}
