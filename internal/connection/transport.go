package connection

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	ws "github.com/gorilla/websocket"
)

// Transport is a bidirectional byte stream to the server. net.Conn
// satisfies it.
type Transport interface {
	io.Reader
	io.Writer
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Transport to address (host:port).
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// TCPDialer dials a plain TCP stream.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context, address string) (Transport, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}
	return conn, nil
}

// WebSocketDialer dials a WebSocket endpoint and exposes its binary
// messages as one continuous stream.
type WebSocketDialer struct {
	Path   string
	Secure bool
}

func (d WebSocketDialer) Dial(ctx context.Context, address string) (Transport, error) {
	u := url.URL{Scheme: "ws", Host: address, Path: d.Path}
	if d.Secure {
		u.Scheme = "wss"
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

// wsStream adapts a WebSocket connection to a byte stream. Each Write is
// sent as one binary message; reads concatenate binary messages. Text
// messages are skipped.
type wsStream struct {
	conn *ws.Conn
	r    io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			mt, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if mt != ws.BinaryMessage {
				continue
			}
			s.r = r
		}

		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(ws.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// Close sends a close frame and closes the underlying connection.
func (s *wsStream) Close() error {
	_ = s.conn.WriteMessage(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
	)
	return s.conn.Close()
}
