package hub

import (
	"context"
	"net/http"
	"strings"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const clientBuffer = 16

// Authenticator resolves the session token a dashboard connects with.
type Authenticator func(ctx context.Context, token string) (models.Actor, error)

// Handler serves the sockjs endpoint under prefix. Clients authenticate with
// the session token in the `token` query parameter.
func (h *Hub) Handler(prefix string, authenticate Authenticator) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		token := sessionToken(session.Request())
		if token == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		actor, err := authenticate(session.Request().Context(), token)
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, clientBuffer)}
		h.Register(client)
		defer h.Unregister(client)
		h.log.Debug("dashboard connected", "client_id", client.ID, "user_id", actor.UserID)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				h.log.Debug("dashboard disconnected", "client_id", client.ID)
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, Subscription{})
				continue
			}
			h.UpdateSubscription(client, Subscription{Token: strings.TrimSpace(parsed.Token)})
		}
	})
}

func sessionToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return ""
}
