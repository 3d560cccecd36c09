package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livehub/auth"
	"livehub/errors"
)

// closeCodeAuthFailed is sent when the handshake token is missing, invalid
// or expired. Clients treat it as "obtain a fresh token", not "retry".
const closeCodeAuthFailed = 4001

// Server upgrades HTTP requests to authenticated websocket sessions.
type Server struct {
	log               *slog.Logger
	hub               *Hub
	dispatcher        *Dispatcher
	issuer            auth.TokenIssuer
	heartbeatInterval time.Duration
	maxMissedPongs    int32

	upgrader websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	hub *Hub,
	dispatcher *Dispatcher,
	issuer auth.TokenIssuer,
	heartbeatInterval time.Duration,
	maxMissedPongs int32,
) *Server {
	return &Server{
		log:               log,
		hub:               hub,
		dispatcher:        dispatcher,
		issuer:            issuer,
		heartbeatInterval: heartbeatInterval,
		maxMissedPongs:    maxMissedPongs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS is the websocket endpoint. The token is authenticated after the
// upgrade so a rejection can be expressed as a proper close frame instead of
// an opaque HTTP error.
func (srv *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	claims, err := srv.authenticate(r)
	if err != nil {
		srv.log.Info("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		deadline := time.Now().Add(writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCodeAuthFailed, errors.ErrSessionExpired.Error()), deadline)
		_ = conn.Close()
		return
	}

	session := newSession(
		uuid.New().String(),
		claims.UserID,
		claims.DisplayName,
		conn,
		srv.hub,
		srv.dispatcher,
		srv.log,
		srv.heartbeatInterval,
		srv.maxMissedPongs,
	)
	session.setState(StateAuthenticated)
	// The write pump must be live before attach: replaying the offline
	// backlog can push more frames than the send queue holds.
	session.open()
	srv.hub.attach(session)

	// Blocks for the lifetime of the connection.
	session.run(r.Context())
}

func (srv *Server) authenticate(r *http.Request) (*auth.SessionClaims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie("session"); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return nil, errors.ErrSessionExpired
	}
	return srv.issuer.Validate(token)
}
