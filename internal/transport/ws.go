// Package transport delivers inbound client messages to the correct session
// and outbound messages back to the client over a websocket.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"campaign-generator/backend/internal/logging"
	"campaign-generator/backend/internal/session"
	"campaign-generator/backend/pkg/models"
)

// maxDecodeErrorsPerConn bounds tolerance for malformed frames before the
// connection is dropped.
const maxDecodeErrorsPerConn = 5

const welcomeMessage = "Hey! Ready to create an amazing campaign? Tell me what you're thinking."

// Handler serves the websocket endpoint and bridges frames to sessions.
type Handler struct {
	registry *session.Registry
	logger   *logging.Logger
}

// NewHandler creates a websocket handler over the registry.
func NewHandler(registry *session.Registry, logger *logging.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Mount registers the websocket route on the echo server.
func (h *Handler) Mount(e *echo.Echo) {
	e.GET("/ws/:client_id", h.handleWS)
}

func (h *Handler) handleWS(c echo.Context) error {
	clientID := strings.TrimSpace(c.Param("client_id"))
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client id is required")
	}

	server := websocket.Server{Handler: func(conn *websocket.Conn) {
		h.serve(conn, clientID)
	}}
	server.ServeHTTP(c.Response(), c.Request())
	return nil
}

// peer serializes outbound frames onto one connection.
type peer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{enc: json.NewEncoder(conn)}
}

func (p *peer) send(frame models.Outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(frame)
}

func (h *Handler) serve(conn *websocket.Conn, clientID string) {
	defer func() {
		_ = conn.Close()
	}()

	out := newPeer(conn)

	sess, err := h.registry.Create(clientID, out.send)
	if err != nil {
		h.logger.Warn("rejecting connection", "client_id", clientID, "error", err)
		_ = out.send(models.NewOutbound(models.OutboundError,
			"A session is already active for this client id."))
		return
	}
	// Tear down the session this connection created. Resolving by id here
	// would race a reconnect that reused the id and kill its fresh session;
	// Disconnect on an already-removed session is a no-op.
	defer sess.Disconnect()

	_ = out.send(models.NewOutbound(models.OutboundAssistant, welcomeMessage))
	sess.Resume()

	// Frames are read one websocket message at a time so a malformed payload
	// never corrupts the stream for the frames behind it.
	decodeErrors := 0
	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				h.logger.Debug("websocket read ended", "client_id", clientID, "error", err)
			}
			return
		}

		var frame models.Inbound
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			decodeErrors++
			h.logger.Warn("invalid frame payload", "client_id", clientID, "error", err)
			_ = out.send(models.NewOutbound(models.OutboundError, "Invalid message payload."))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		h.dispatch(clientID, out, frame)
	}
}

// dispatch routes one inbound frame to its session.
func (h *Handler) dispatch(clientID string, out *peer, frame models.Inbound) {
	sess, err := h.registry.Get(clientID)
	if err != nil {
		_ = out.send(models.NewOutbound(models.OutboundError,
			"Session not found or expired. Reconnect to start a new campaign."))
		return
	}

	switch frame.Type {
	case models.InboundHandshake:
		sess.SetHandshake(frame.Location, frame.Credentials)

	case models.InboundUserMessage:
		_ = out.send(models.NewOutbound(models.OutboundUser, frame.Message))
		sess.StartCampaign(frame.Message)

	case models.InboundUserResponse:
		_ = out.send(models.NewOutbound(models.OutboundUser, frame.Response))
		sess.HandleResponse(frame.QuestionID, frame.Response)

	case models.InboundReset:
		sess.Reset()

	case models.InboundCancel:
		sess.Cancel()

	default:
		// Unknown inbound messages are ignored without touching state.
		h.logger.Warn("unsupported message type", "client_id", clientID, "type", frame.Type)
	}
}
