// Package pubsub publishes opportunity records to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// Message attributes set on every publish.
const (
	AttrOpportunityID = "opportunity_id"
	AttrHarvestRunID  = "harvest_run_id"
)

// Config identifies the destination topic.
type Config struct {
	ProjectID string
	TopicID   string
}

// Sink publishes one JSON message per record.
type Sink struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	ownsClient bool
}

var _ harvest.RecordSink = (*Sink)(nil)

// New dials Pub/Sub with application default credentials.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub.project_id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	s, err := NewWithClient(client, cfg.TopicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// NewWithClient publishes through an existing client. The caller keeps
// ownership of client.
func NewWithClient(client *pubsub.Client, topicID string) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub.topic_id is required")
	}
	return &Sink{client: client, topic: client.Topic(topicID)}, nil
}

// Push publishes record and waits for the server acknowledgement.
func (s *Sink) Push(ctx context.Context, record harvest.OpportunityRecord) error {
	if s == nil || s.topic == nil {
		return fmt.Errorf("%w: pubsub sink is not configured", harvest.ErrSinkUnavailable)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.OpportunityID, err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrOpportunityID: record.OpportunityID,
			AttrHarvestRunID:  record.HarvestRunID,
		},
	}
	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", record.OpportunityID, err)
	}
	return nil
}

// Close flushes pending publishes and releases the client when owned.
func (s *Sink) Close() error {
	if s == nil || s.topic == nil {
		return nil
	}
	s.topic.Stop()
	if s.ownsClient {
		if err := s.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
