// ABOUTME: Realtime relay accepting WebSocket connections on the webhook path
// ABOUTME: Every inbound frame is broadcast verbatim onto the bus

package voice

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// relayReadLimit caps a single relay frame. Call events are small; anything
// larger is a misbehaving client.
const relayReadLimit = 512 * 1024

// handleRelay upgrades the connection and forwards every inbound text or
// binary frame to the bus. No parsing, no acknowledgment, no outbound
// frames; the transport owns the connection lifecycle.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeJSONError(w, http.StatusUpgradeRequired, "websocket upgrade required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.trackConn(conn)
	defer s.untrackConn(conn)
	s.metrics.RelayConnections.Inc()

	remote := conn.RemoteAddr().String()
	s.logger.Info("relay client connected", "remote", remote)

	conn.SetReadLimit(relayReadLimit)

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("relay connection error", "remote", remote, "error", err)
			} else {
				s.logger.Info("relay client disconnected", "remote", remote)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		s.metrics.RelayFrames.Inc()
		s.bus.Broadcast(Event{
			ID:         uuid.New().String(),
			ReceivedAt: time.Now(),
			Payload:    frame,
		})
	}
}

func (s *Server) trackConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, conn)
}

// closeRelayConns sends a going-away close frame to every live relay
// connection and closes it. The read loops exit on their own afterwards.
func (s *Server) closeRelayConns() {
	s.connMu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			deadline)
		_ = conn.Close()
	}
}
