package identity

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
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("", auth.RequireAuth())
	authed.GET("/users/me", h.Me)
	authed.PUT("/users/me", h.UpdateMe)
	authed.GET("/pharmacies", h.ListPharmacies)
	authed.GET("/pharmacies/:id", h.GetPharmacy)

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacy))
	pharmacy.GET("/pharmacies/me", h.MyPharmacy)
	pharmacy.PUT("/pharmacies/me", h.UpdateMyPharmacy)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/pharmacies/:id/verify", h.VerifyPharmacy)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.GET("/patients/me", h.MyPatientProfile)
	patient.PUT("/patients/me", h.UpdateMyPatientProfile)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	acct, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, acct)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	acct, err := h.svc.Me(ctx, auth.CallerFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	var in UpdateUserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	acct, err := h.svc.UpdateMe(ctx, auth.CallerFromContext(ctx), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) ListPharmacies(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListPharmacies(ctx, auth.CallerFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPharmacy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPharmacy(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MyPharmacy(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.MyPharmacy(ctx, auth.CallerFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMyPharmacy(c echo.Context) error {
	var in UpdatePharmacyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdateMyPharmacy(ctx, auth.CallerFromContext(ctx), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) VerifyPharmacy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.VerifyPharmacy(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MyPatientProfile(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.MyPatientProfile(ctx, auth.CallerFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMyPatientProfile(c echo.Context) error {
	var in UpdatePatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdateMyPatientProfile(ctx, auth.CallerFromContext(ctx), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
