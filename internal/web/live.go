package web

import (
	"bytes"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handleWebSocket scores every text frame as a JSON profile and answers with a
// result or an {"error","code"} body on the same connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.scorer == nil {
		s.writeError(w, s.loadErr)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket client disconnected")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		if err := conn.WriteJSON(s.scoreFrame(data)); err != nil {
			log.Error().Err(err).Msg("failed to send message to websocket client")
			return
		}
	}
}

func (s *Server) scoreFrame(data []byte) any {
	p, err := decodeProfile(bytes.NewReader(data))
	if err != nil {
		err = s.bindFailed(ChannelWS, err)
	} else {
		var res scored
		if res, err = s.score(ChannelWS, p); err == nil {
			return res
		}
	}
	_, code := classify(err)
	return apiError{Error: err.Error(), Code: code}
}
