package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"city311-api/middleware"
	"city311-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type runMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LiveRuns streams pipeline run events published on channel. Browsers cannot
// set headers on a websocket handshake, so the token may come as ?token=.
func LiveRuns(cache *services.CacheService, authService *services.AuthService, channel string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := middleware.ExtractToken(c)
		if tokenStr == "" {
			respondError(c, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := authService.ValidateToken(tokenStr); err != nil {
			respondError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if !cache.Available() {
			respondError(c, http.StatusServiceUnavailable, "live feed unavailable")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pubsub, err := cache.Subscribe(ctx, channel)
		if err != nil {
			logger.Warn("run event subscription failed", zap.Error(err))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "live feed unavailable"))
			return
		}
		defer pubsub.Close()
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !json.Valid([]byte(msg.Payload)) {
					logger.Warn("dropping malformed run event", zap.String("channel", channel))
					continue
				}
				if err := conn.WriteJSON(runMessage{Type: "model_run", Data: json.RawMessage(msg.Payload)}); err != nil {
					logger.Debug("websocket write failed", zap.Error(err))
					return
				}
			}
		}
	}
}
