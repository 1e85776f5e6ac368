package pharmacy

import (
	"net/http"
	"strconv"

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
	// Catalogue reads are public.
	api.GET("/medicines", h.ListMedicines)
	api.GET("/medicines/search_nearby", h.SearchNearby)
	api.GET("/medicines/:id", h.GetMedicine)

	write := api.Group("", auth.RequireRole(auth.RolePharmacy))
	write.POST("/medicines", h.CreateMedicine)
	write.PUT("/medicines/:id", h.UpdateMedicine)
	write.DELETE("/medicines/:id", h.DeleteMedicine)
}

func (h *Handler) ListMedicines(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListMedicines(ctx, auth.CallerFromContext(ctx), c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	m, err := h.svc.CreateMedicine(ctx, auth.CallerFromContext(ctx), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	m, err := h.svc.UpdateMedicine(ctx, auth.CallerFromContext(ctx), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteMedicine(ctx, auth.CallerFromContext(ctx), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchNearby handles GET /medicines/search_nearby?name&lat&lng&radius&sort.
func (h *Handler) SearchNearby(c echo.Context) error {
	name, latStr, lngStr := c.QueryParam("name"), c.QueryParam("lat"), c.QueryParam("lng")
	if name == "" || latStr == "" || lngStr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name, latitude and longitude are required")
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lng, errLng := strconv.ParseFloat(lngStr, 64)
	if errLat != nil || errLng != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid latitude or longitude")
	}
	q := NearbyQuery{Name: name, Lat: lat, Lon: lng, Sort: c.QueryParam("sort")}
	if r := c.QueryParam("radius"); r != "" {
		radius, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid radius")
		}
		q.RadiusKm = radius
	}

	results, err := h.svc.SearchMedicinesNearby(c.Request().Context(), q)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, results)
}
