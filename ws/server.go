// Package ws is the transport gateway: it upgrades HTTP requests to
// websocket connections, frames events as JSON, and bridges each
// connection to the routing core as an EventSink.
package ws

import (
	"context"
	"log/slog"
	"net/http"

	"chat-hub/contract"

	"github.com/gorilla/websocket"
)

type Gateway struct {
	log        *slog.Logger
	router     contract.Router
	upgrader   websocket.Upgrader
	bufferSize int

	// baseCtx outlives individual requests; pump goroutines stop with
	// the service, not with the HTTP handler that spawned them.
	baseCtx context.Context
}

func NewGateway(ctx context.Context, log *slog.Logger, router contract.Router, bufferSize int) *Gateway {
	return &Gateway{
		log:    log,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		bufferSize: bufferSize,
		baseCtx:    ctx,
	}
}

// ServeWS upgrades the request and runs the connection until the peer
// disconnects.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	g.log.Debug("Connection established", "remote", r.RemoteAddr)

	client := newClient(conn, g.bufferSize, g.log)
	g.router.Connected(g.baseCtx, client)

	go client.writePump(g.baseCtx)
	client.readPump(g.baseCtx, g)
}
