package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain/event"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. It is the EventSink the routing
// core delivers to: Consume hands events to a buffered send queue so
// that fan-out never blocks on a slow socket.
type Client struct {
	conn *websocket.Conn
	send chan event.Event
	log  *slog.Logger
}

func newClient(conn *websocket.Conn, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		conn: conn,
		send: make(chan event.Event, bufferSize),
		log:  log,
	}
}

// Consume queues an outbound event for this connection. A full queue
// means the client is not keeping up; the event is dropped rather than
// stalling delivery to everyone else.
func (c *Client) Consume(ctx context.Context, e event.Event) error {
	select {
	case c.send <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("send queue full")
	}
}

// readPump decodes inbound frames and hands the resulting commands to
// the router. It owns the read side of the connection and returns when
// the peer goes away.
func (c *Client) readPump(ctx context.Context, g *Gateway) {
	defer func() {
		g.router.Disconnected(ctx, c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Connection closed unexpectedly", "error", err)
			}
			return
		}

		cmd, err := decodeCommand(frame)
		if err != nil {
			// Fail soft: a malformed frame is dropped, the connection
			// and everyone else's traffic are unaffected.
			c.log.Debug("Dropping malformed frame", "event", frame.Event, "error", err)
			continue
		}
		g.router.Handle(ctx, c, cmd)
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(outFrame{Event: e.Name(), Data: e}); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
