package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rsproule/llm-gladiators/internal/metrics"
	"github.com/rsproule/llm-gladiators/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TranscriptSnapshot is one frame sent to a transcript watcher.
type TranscriptSnapshot struct {
	Status   stream.Status  `json:"status"`
	Messages []stream.Entry `json:"messages"`
}

// WatchMatch streams the reconstructed transcript over a WebSocket. Each
// connection runs its own stream session, so dedup state never leaks
// between observers. The socket closes when the match completes or the
// client disconnects; reconnecting rebuilds the transcript from scratch.
func (h *Handler) WatchMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.WatchersConnected.Inc()
	defer metrics.WatchersConnected.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: the client sends nothing meaningful, but reads surface
	// disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	session := &stream.Session{
		Channel: h.broker.Channel(matchID),
		Log:     h.db,
		MatchID: matchID,
		Logger:  h.logger.With().Str("match_id", matchID).Logger(),
	}

	updates := make(chan stream.State, 16)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx, updates)
	}()

	for {
		select {
		case state := <-updates:
			if err := conn.WriteJSON(snapshot(state)); err != nil {
				cancel()
				<-done
				return
			}
		case err := <-done:
			if err != nil {
				h.logger.Warn().Err(err).Str("match_id", matchID).Msg("stream session ended with error")
			}
			// Drain snapshots buffered before the session returned.
			for {
				select {
				case state := <-updates:
					if err := conn.WriteJSON(snapshot(state)); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func snapshot(state stream.State) TranscriptSnapshot {
	messages := state.Entries
	if messages == nil {
		messages = []stream.Entry{}
	}
	return TranscriptSnapshot{Status: state.Status, Messages: messages}
}
