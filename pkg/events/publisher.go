// Package events publishes backfill progress events to Google Cloud Pub/Sub.
package events

import (
	"context"
	"fmt"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"cloud.google.com/go/pubsub"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const publishTimeout = 5 * time.Second

type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPublisher connects to projectID and publishes to topicName. An empty
// credentialsFile falls back to application default credentials.
func NewPublisher(ctx context.Context, projectID, topicName, credentialsFile string, opts ...option.ClientOption) (*Publisher, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check topic %s: %w", topicName, err)
	}
	if !exists {
		client.Close()
		return nil, fmt.Errorf("topic %s does not exist", topicName)
	}

	log.Infof("[PubSub] Publishing batch events to topic: %s", topicName)
	return &Publisher{client: client, topic: topic}, nil
}

// NotifyBatchPublished publishes event and waits for the server ack.
func (p *Publisher) NotifyBatchPublished(ctx context.Context, event *statsdomain.BatchPublishedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"routingKey": statsdomain.RoutingKeyBatchPublished,
			"ownerEmail": event.OwnerEmail,
		},
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish batch %s: %w", event.BatchID, err)
	}

	log.WithFields(log.Fields{
		"batch_id":  event.BatchID,
		"server_id": serverID,
	}).Debug("[PubSub] Batch event published")
	return nil
}

func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
