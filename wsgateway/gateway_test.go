package wsgateway

import (
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// captureInjector records the bridged connection handed to it.
type captureInjector struct {
	conns chan net.Conn
}

func (c *captureInjector) Inject(conn net.Conn) error {
	c.conns <- conn
	return nil
}

type rejectInjector struct{}

func (rejectInjector) Inject(conn net.Conn) error {
	conn.Close()
	return io.ErrClosedPipe
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayBridgesBothDirections(t *testing.T) {
	inj := &captureInjector{conns: make(chan net.Conn, 1)}
	srv := httptest.NewServer(New(inj, testLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	var bridged net.Conn
	select {
	case bridged = <-inj.conns:
	case <-time.After(3 * time.Second):
		t.Fatal("connection was never injected")
	}
	defer bridged.Close()

	// Client to server.
	if err := ws.WriteMessage(websocket.TextMessage, []byte("auth_ag user none\n")); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	buf := make([]byte, 64)
	bridged.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, err := bridged.Read(buf)
	if err != nil {
		t.Fatalf("bridged read: %v", err)
	}
	if got := string(buf[:n]); got != "auth_ag user none\n" {
		t.Errorf("bridged read = %q, want the client line", got)
	}

	// Server to client.
	if _, err := bridged.Write([]byte("rep 002 -- cmd end\n")); err != nil {
		t.Fatalf("bridged write: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	if string(data) != "rep 002 -- cmd end\n" {
		t.Errorf("ws read = %q, want the server line", string(data))
	}
}

func TestGatewayClosesOnRejection(t *testing.T) {
	srv := httptest.NewServer(New(rejectInjector{}, testLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("read succeeded, want the socket closed after rejection")
	}
}
