package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Action string

const (
	ActionMessageCreate  Action = "MESSAGE_CREATE"
	ActionMessageEdit    Action = "MESSAGE_EDIT"
	ActionMessageDelete  Action = "MESSAGE_DELETE"
	ActionReactionCreate Action = "REACTION_CREATE"
	ActionReactionEdit   Action = "REACTION_EDIT"
	ActionReactionDelete Action = "REACTION_DELETE"
)

// Envelope is the wire shape of every real-time event.
type Envelope struct {
	Action Action `json:"action"`
	Data   any    `json:"data"`
	Sender string `json:"sender"`
}

// Transport delivers a payload to a channel topic. Implementations report
// failure as an error; they never retry.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

const topicPrefix = "channel:"

// TopicFor names the pub/sub topic of a channel.
func TopicFor(channelID uuid.UUID) string {
	return topicPrefix + channelID.String()
}

// ChannelFromTopic is the inverse of TopicFor.
func ChannelFromTopic(topic string) (uuid.UUID, bool) {
	if len(topic) <= len(topicPrefix) || topic[:len(topicPrefix)] != topicPrefix {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(topic[len(topicPrefix):])
	return id, err == nil
}

type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return t.client.Publish(ctx, topic, payload).Err()
}

// Publisher fans mutations out to a channel's topic. It is called strictly
// after the triggering transaction committed, is bounded by its own timeout,
// and absorbs every failure: real-time delivery is best effort and must
// never fail the mutation it follows.
type Publisher struct {
	transport Transport
	log       *slog.Logger
	timeout   time.Duration
}

func NewPublisher(transport Transport, log *slog.Logger, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Publisher{transport: transport, log: log, timeout: timeout}
}

// Publish emits one event for a mutation. The caller's context is not used:
// a request aborted after commit cannot un-publish, so the send runs under
// the publisher's own deadline.
func (p *Publisher) Publish(action Action, channelID uuid.UUID, data any, sender uuid.UUID) {
	payload, err := json.Marshal(Envelope{
		Action: action,
		Data:   data,
		Sender: sender.String(),
	})
	if err != nil {
		p.log.Error("event payload not serializable",
			"action", string(action), "channel", channelID.String(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.transport.Publish(ctx, TopicFor(channelID), payload); err != nil {
		p.log.Error("event publish failed",
			"action", string(action), "channel", channelID.String(), "error", err)
	}
}
