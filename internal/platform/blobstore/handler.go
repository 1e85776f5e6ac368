package blobstore

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/pkg/pagination"
)

// uploadResponse adds the absolute download URL, which clients pass as
// prescription_image.
type uploadResponse struct {
	*Metadata
	URL string `json:"url"`
}

type Handler struct {
	images *Images
}

func NewHandler(images *Images) *Handler {
	return &Handler{images: images}
}

// RegisterRoutes mounts the upload routes. Downloads are public: ids are
// random and the URLs are shared with pharmacies.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/uploads/:id", h.Download)

	authed := api.Group("", auth.RequireAuth())
	authed.POST("/uploads", h.Upload)
	authed.GET("/uploads", h.List)
	authed.DELETE("/uploads/:id", h.Delete)
}

func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer src.Close()

	ctx := c.Request().Context()
	meta, err := h.images.Upload(ctx, auth.CallerFromContext(ctx).UserID, file.Filename, src)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, uploadResponse{Metadata: meta, URL: downloadURL(c, meta.ID)})
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, meta, err := h.images.Open(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, meta.FileName))
	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return c.Stream(http.StatusOK, meta.ContentType, r)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.images.ListByOwner(ctx, auth.CallerFromContext(ctx).UserID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.images.Delete(ctx, auth.CallerFromContext(ctx).UserID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func downloadURL(c echo.Context, id uuid.UUID) string {
	return c.Scheme() + "://" + c.Request().Host + "/api/v1/uploads/" + id.String()
}
