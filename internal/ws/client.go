package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
)

const sendBuffer = 64

var errEmployeeBusy = domain.ErrCaptureInProgress.WithError(errors.New("employee already has a live session"))

// Conn is the part of *websocket.Conn a client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	conn       Conn
	employeeID string
	send       chan []byte
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	closed  bool
	session *capture.Session
}

func newClient(conn Conn, employeeID string, logger *slog.Logger) *Client {
	return &Client{
		conn:       conn,
		employeeID: employeeID,
		send:       make(chan []byte, sendBuffer),
		logger:     logger,
		now:        time.Now,
	}
}

func (c *Client) attach(s *capture.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) cancel() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Emit queues a feedback-class event. It is dropped when the browser is
// not keeping up.
func (c *Client) Emit(t EventType, data any) {
	c.enqueue(t, data, false)
}

// emitFinal queues an event that must not be dropped.
func (c *Client) emitFinal(t EventType, data any) {
	c.enqueue(t, data, true)
}

func (c *Client) enqueue(t EventType, data any, wait bool) {
	msg, err := json.Marshal(Event{Type: t, Data: data, Timestamp: c.now().UTC()})
	if err != nil {
		c.logger.Error("failed to encode event", slog.String("type", string(t)), slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if wait {
		c.send <- msg
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("event dropped", slog.String("type", string(t)))
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump feeds binary frames into buffer and applies text controls until
// the connection fails. A dropped connection cancels the session.
func (c *Client) ReadPump(ctx context.Context, buffer *frame.Buffer) {
	defer c.cancel()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := buffer.PushEncoded(data); err != nil && !errors.Is(err, frame.ErrSourceClosed) {
				c.Emit(EventError, errorData(domain.ErrInvalidImage.WithError(err), false))
			}
		case websocket.TextMessage:
			c.control(ctx, data)
		}
	}
}

func (c *Client) control(ctx context.Context, data []byte) {
	var ctl Control
	if err := json.Unmarshal(data, &ctl); err != nil {
		c.Emit(EventError, errorData(domain.ErrBadRequest.WithError(err), false))
		return
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		c.Emit(EventError, errorData(domain.ErrSessionNotActive, false))
		return
	}

	switch ctl.Action {
	case ActionCapture:
		if err := s.Capture(ctx); err != nil {
			c.Emit(EventError, errorData(err, false))
		}
	case ActionCancel:
		s.Cancel()
	default:
		c.Emit(EventError, ErrorData{Code: domain.ErrBadRequest.Code, Message: "unknown action " + ctl.Action})
	}
}

// WritePump writes queued events until the queue is closed. After a write
// error the rest of the queue is drained without writing.
func (c *Client) WritePump() {
	failed := false
	for message := range c.send {
		if failed {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
			failed = true
		}
	}
}
