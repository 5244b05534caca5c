package messaging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// event is a published envelope routed back in from Redis.
type event struct {
	channelID uuid.UUID
	payload   []byte
}

// Hub is the central router for websocket delivery. It subscribes to every
// channel topic and forwards each event to the connected clients that are
// members of the event's channel. The clients map is touched only by Run's
// goroutine, so it needs no lock.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan event
	Register   chan *Client
	Unregister chan *Client
	redis      *redis.Client
	log        *slog.Logger
}

func NewHub(redisClient *redis.Client, log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan event),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		redis:      redisClient,
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}

		case ev := <-h.broadcast:
			for client := range h.clients {
				if !client.Channels[ev.channelID] {
					continue
				}
				select {
				case client.Send <- ev.payload:
				default:
					// slow consumer, drop the connection
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// SubscribeToRedis feeds events published by this or any other instance
// into the broadcast loop.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, topicPrefix+"*")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		channelID, ok := ChannelFromTopic(msg.Channel)
		if !ok {
			h.log.Warn("unroutable event topic", "topic", msg.Channel)
			continue
		}
		h.broadcast <- event{channelID: channelID, payload: []byte(msg.Payload)}
	}
}
