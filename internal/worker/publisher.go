package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/transit"
)

// Snapshot is one poll target's arrival summary, published after every cycle.
type Snapshot struct {
	WatchID    string            `json:"watch_id,omitempty"`
	Label      string            `json:"label,omitempty"`
	Arrivals   []transit.Arrival `json:"arrivals"`
	StopsCount int               `json:"stops_count"`
	Count      int               `json:"count"`
	Speech     string            `json:"speech"`
	PolledAt   time.Time         `json:"polled_at"`
}

// Publisher delivers snapshots to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot) error
	Close() error
}

// PubSubPublisher publishes snapshots to a Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicName string
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// NewPubSubPublisher creates a new Pub/Sub publisher.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		topicName: cfg.TopicName,
		logger:    cfg.Logger,
	}, nil
}

// Publish encodes the snapshot and publishes it, blocking until the server
// acknowledges the message.
func (p *PubSubPublisher) Publish(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"watch_id": snap.WatchID,
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("watch_id", snap.WatchID).
		Str("topic", p.topicName).
		Msg("snapshot published")

	return nil
}

// Close flushes pending messages and closes the Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// LogPublisher writes snapshots to the log. Used when no Pub/Sub topic is
// configured, so the worker stays useful as a standalone announcer.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher that logs snapshots.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the snapshot's speech line and counts.
func (p *LogPublisher) Publish(_ context.Context, snap *Snapshot) error {
	p.logger.Info().
		Str("watch_id", snap.WatchID).
		Str("label", snap.Label).
		Int("count", snap.Count).
		Int("stops_count", snap.StopsCount).
		Str("speech", snap.Speech).
		Msg("arrival snapshot")
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
