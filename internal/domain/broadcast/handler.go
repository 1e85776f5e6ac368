package broadcast

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireAuth())
	read.GET("/broadcasts", h.ListBroadcasts)
	read.GET("/broadcasts/:id", h.GetBroadcast)
	read.GET("/responses", h.ListResponses)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/broadcasts", h.CreateBroadcast)
	patient.POST("/broadcasts/:id/cancel", h.CancelBroadcast)
	patient.POST("/responses/:id/accept", h.AcceptResponse)

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacy))
	pharmacy.POST("/broadcasts/:id/respond", h.Respond)
	pharmacy.GET("/pharmacy/near-expiry-discounts", h.NearExpiryDiscounts)
}

func (h *Handler) CreateBroadcast(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	b, err := h.svc.CreateBroadcast(ctx, auth.CallerFromContext(ctx), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBroadcasts(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListBroadcasts(ctx, auth.CallerFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBroadcast(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	b, err := h.svc.GetBroadcast(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBroadcast(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	b, err := h.svc.CancelBroadcast(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Respond(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in RespondInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	resp, err := h.svc.Respond(ctx, auth.CallerFromContext(ctx), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListResponses(c echo.Context) error {
	var broadcastID *uuid.UUID
	if raw := c.QueryParam("broadcast_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid broadcast_id")
		}
		broadcastID = &id
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListResponses(ctx, auth.CallerFromContext(ctx), broadcastID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AcceptResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	res, err := h.svc.AcceptResponse(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) NearExpiryDiscounts(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.NearExpiryDiscounts(ctx, auth.CallerFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
