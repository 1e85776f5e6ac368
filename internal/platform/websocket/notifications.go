package websocket

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

// NotificationHandler streams the caller's notifications over a push-only
// socket subscribed to the caller's user topic.
type NotificationHandler struct {
	upgrader *Upgrader
}

func NewNotificationHandler(upgrader *Upgrader) *NotificationHandler {
	return &NotificationHandler{upgrader: upgrader}
}

func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/notifications", h.Connect)
}

func (h *NotificationHandler) Connect(c echo.Context) error {
	caller := auth.CallerFromContext(c.Request().Context())
	if !caller.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	client := NewClient(caller.UserID, UserTopic(caller.UserID))
	return h.upgrader.Serve(c, client, nil)
}
