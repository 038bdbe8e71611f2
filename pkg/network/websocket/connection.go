package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// conn is a socket with a read size limit and a deadline on every write.
type conn struct {
	sock      *websocket.Conn
	writeWait time.Duration
}

func newConn(sock *websocket.Conn, readLimit int64, writeWait time.Duration) conn {
	sock.SetReadLimit(readLimit)
	return conn{sock: sock, writeWait: writeWait}
}

func (c conn) read() ([]byte, error) {
	_, message, err := c.sock.ReadMessage()
	return message, err
}

func (c conn) write(kind int, message []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.sock.WriteMessage(kind, message)
}

// bye sends the normal close frame.
func (c conn) bye() error {
	return c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c conn) close() error { return c.sock.Close() }
