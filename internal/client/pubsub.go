package client

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/windfall/shadowing/internal/cache"
)

// PubSubClient wraps the Google Cloud Pub/Sub client as a cache invalidation bus.
type PubSubClient struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
}

// NewPubSubClient creates a new Pub/Sub client.
func NewPubSubClient(ctx context.Context, projectID, topicID string) (*PubSubClient, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	topic := client.Topic(topicID)

	return &PubSubClient{
		client: client,
		topic:  topic,
	}, nil
}

// WithSubscription sets the subscription to use for receiving messages.
// Every instance needs its own subscription to see all invalidations.
func (c *PubSubClient) WithSubscription(subscriptionID string) *PubSubClient {
	c.subscription = c.client.Subscription(subscriptionID)
	return c
}

// Close closes the client.
func (c *PubSubClient) Close() {
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.client != nil {
		c.client.Close()
	}
}

// Publish publishes an invalidation and waits for the server to accept it.
func (c *PubSubClient) Publish(ctx context.Context, inv cache.Invalidation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}

	result := c.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"origin": inv.Origin},
	})

	_, err = result.Get(ctx)
	return err
}

// Listen receives invalidations from the subscription until ctx is done.
// Malformed messages are acked and dropped so they are not redelivered.
func (c *PubSubClient) Listen(ctx context.Context, handler func(cache.Invalidation)) error {
	if c.subscription == nil {
		return fmt.Errorf("pubsub subscription not configured")
	}

	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var inv cache.Invalidation
		if err := json.Unmarshal(msg.Data, &inv); err == nil {
			handler(inv)
		}
		msg.Ack()
	})
}
