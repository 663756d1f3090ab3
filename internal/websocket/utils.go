package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a single frame write may block; a stalled
// client must not wedge the session loop.
const writeWait = 10 * time.Second

// WriteTyped sends a strongly-typed event payload over the socket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the socket.
func WriteError(conn *websocket.Conn, msg string) error {
	return WriteTyped(conn, ErrorResponse{Event: EventError, Error: msg})
}
