package ipc

import (
	"net"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
)

// Client is a thin synchronous IPC client used by the CLI surface: dial
// the configured socket, send one message, read back the reply. It has
// no business logic of its own.
type Client struct {
	conn         net.Conn
	version      ProtocolVersion
	maxFrameSize uint32
}

// Dial connects to socketPath and returns a Client ready to exchange
// messages at the given protocol version.
func Dial(socketPath string, version ProtocolVersion, maxFrameSize uint32, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, &errs.Protocol{Reason: "dial failed: " + err.Error()}
	}
	return &Client{conn: conn, version: version, maxFrameSize: maxFrameSize}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Send writes msg as one frame and returns the next frame decoded as a
// Message.
func (c *Client) Send(msg Message) (Message, error) {
	encoded, err := EncodeMessage(msg, c.version)
	if err != nil {
		return nil, err
	}
	if err := WriteFrame(c.conn, encoded, c.maxFrameSize); err != nil {
		return nil, err
	}
	frame, err := ReadFrame(c.conn, c.maxFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(frame, c.version)
}

// Handshake performs the initial handshake exchange and returns the
// minted session id.
func (c *Client) Handshake(token string) (string, error) {
	reply, err := c.Send(Handshake{Token: token, ProtocolVersion: c.version})
	if err != nil {
		return "", err
	}
	ack, ok := reply.(HandshakeAck)
	if !ok {
		if errMsg, ok := reply.(ErrorMessage); ok {
			return "", &errs.AuthFailure{Reason: errMsg.Message}
		}
		return "", &errs.Protocol{Reason: "unexpected handshake reply"}
	}
	return ack.SessionID, nil
}
