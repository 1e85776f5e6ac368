package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// MessageFunc handles one inbound frame from client.
type MessageFunc func(client *Client, data []byte)

// Upgrader upgrades HTTP requests and runs the read and write pumps of the
// resulting connection.
type Upgrader struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewUpgrader returns an upgrader accepting the given browser origins. An
// empty list or "*" accepts any origin.
func NewUpgrader(hub *Hub, allowedOrigins []string) *Upgrader {
	return &Upgrader{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// Hub returns the hub clients are registered with.
func (u *Upgrader) Hub() *Hub { return u.hub }

// Serve upgrades the request, registers client with the hub and starts its
// pumps. onMessage may be nil for push-only sockets. Serve returns once the
// connection is established; the pumps own it from then on.
func (u *Upgrader) Serve(c echo.Context, client *Client, onMessage MessageFunc) error {
	ws, err := u.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	u.hub.Register(client)

	go writePump(client, ws)
	go u.readPump(client, ws, onMessage)
	return nil
}

func (u *Upgrader) readPump(client *Client, ws *gorillawebsocket.Conn, onMessage MessageFunc) {
	defer func() {
		u.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				u.hub.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket closed")
			}
			return
		}
		if onMessage != nil {
			onMessage(client, message)
		}
	}
}

func writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
