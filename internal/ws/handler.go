package ws

import (
	"encoding/json"
	"strings"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"
)

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

type subscribeMessage struct {
	Action string `json:"action"`
	Scope  string `json:"scope"`
	LoanID string `json:"loan_id"`
	Handle string `json:"handle"`
}

type ackMessage struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	handle, role := middleware.Caller(c)
	websocket.Handler(func(conn *websocket.Conn) {
		client := NewClient(conn, handle)
		client.admin = role == auth.RoleAdmin
		h.hub.Register(client)
		go h.writer(client)
		h.reader(client)
	}).ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) reader(client *Client) {
	defer func() {
		h.hub.UnsubscribeAll(client)
		client.closeOut()
		_ = client.conn.Close()
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(client.conn, &raw); err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			h.ack(client, ackMessage{Event: "error", Error: "invalid_message"})
			continue
		}
		h.ack(client, h.apply(client, msg))
	}
}

func (h *Handler) apply(client *Client, msg subscribeMessage) ackMessage {
	channel := subscriptionChannel(msg)
	if channel == "" {
		return ackMessage{Event: "error", Error: "invalid_channel"}
	}
	switch strings.ToLower(strings.TrimSpace(msg.Action)) {
	case "subscribe":
		if strings.HasPrefix(channel, "party:") && !client.admin && channel != PartyChannel(client.handle) {
			return ackMessage{Event: "error", Channel: channel, Error: "forbidden_channel"}
		}
		if client.channelCount() >= maxChannelsPerClient {
			return ackMessage{Event: "error", Channel: channel, Error: "too_many_channels"}
		}
		h.hub.Subscribe(channel, client)
		return ackMessage{Event: "subscribed", Channel: channel}
	case "unsubscribe":
		h.hub.Unsubscribe(channel, client)
		return ackMessage{Event: "unsubscribed", Channel: channel}
	default:
		return ackMessage{Event: "error", Error: "invalid_action"}
	}
}

func (h *Handler) ack(client *Client, msg ackMessage) {
	payload, _ := json.Marshal(msg)
	client.send(payload)
}

func (h *Handler) writer(client *Client) {
	for payload := range client.out {
		if err := websocket.Message.Send(client.conn, string(payload)); err != nil {
			return
		}
	}
}

// subscriptionChannel resolves a subscribe message to loan:<id> or party:<handle>.
func subscriptionChannel(msg subscribeMessage) string {
	switch strings.ToLower(strings.TrimSpace(msg.Scope)) {
	case "loan":
		loanID := strings.TrimSpace(msg.LoanID)
		if loanID == "" {
			return ""
		}
		return LoanChannel(loanID)
	case "party":
		handle := strings.TrimSpace(msg.Handle)
		if handle == "" {
			return ""
		}
		return PartyChannel(handle)
	default:
		return ""
	}
}

func LoanChannel(loanID string) string { return "loan:" + loanID }

func PartyChannel(handle string) string { return "party:" + strings.ToLower(handle) }
