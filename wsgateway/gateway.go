// Package wsgateway bridges browser clients onto the protocol server.
// Each accepted websocket is adapted to a net.Conn pair and injected
// into the event loop, so websocket sessions go through the exact same
// admission, dispatch and eviction paths as plain TCP sessions.
package wsgateway

import (
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// Injector accepts established connections into the server loop.
type Injector interface {
	Inject(conn net.Conn) error
}

// Gateway upgrades HTTP requests to websockets and pipes them into the
// injector.
type Gateway struct {
	injector Injector
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a gateway feeding the given injector. The origin check
// accepts everything; the protocol performs its own authentication.
func New(injector Injector, log *slog.Logger) *Gateway {
	return &Gateway{
		injector: injector,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	server, client := net.Pipe()
	// The server loop sees the websocket peer's address, not the
	// pipe's, so session identity and the challenge nonce bind to the
	// real client endpoint.
	if err := g.injector.Inject(&addrConn{Conn: server, remote: ws.RemoteAddr()}); err != nil {
		g.log.Warn("websocket rejected", "remote", r.RemoteAddr, "error", err)
		ws.Close()
		server.Close()
		client.Close()
		return
	}

	g.log.Info("websocket client bridged", "remote", r.RemoteAddr)
	go g.readPump(ws, client)
	go g.writePump(ws, client)
}

// readPump moves websocket frames into the bridged connection until
// either side closes.
func (g *Gateway) readPump(ws *websocket.Conn, pipe net.Conn) {
	defer pipe.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if _, err := pipe.Write(data); err != nil {
			return
		}
	}
}

// writePump moves server output onto the websocket as text frames.
func (g *Gateway) writePump(ws *websocket.Conn, pipe net.Conn) {
	defer ws.Close()
	buf := make([]byte, 4096)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			if werr := ws.WriteMessage(websocket.TextMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				g.log.Debug("websocket bridge closed", "error", err)
			}
			return
		}
	}
}

// addrConn overrides the reported remote address of a piped connection.
type addrConn struct {
	net.Conn
	remote net.Addr
}

func (c *addrConn) RemoteAddr() net.Addr { return c.remote }
