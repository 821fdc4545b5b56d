// Package pubsub announces merged periods on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/assemble"
)

// Notification is the JSON payload of a "period merged" message.
type Notification struct {
	RunID   string `json:"run_id"`
	Label   string `json:"label"`
	Month   string `json:"month"`
	Path    string `json:"path"`
	URI     string `json:"uri"`
	Records int    `json:"records"`
	SHA256  string `json:"sha256"`
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic  *pubsub.Topic
	runID  string
	logger *zap.Logger
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic, runID string, logger *zap.Logger) (*Publisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{topic: topic, runID: runID, logger: logger.Named("pubsub")}, nil
}

// Publish marshals the payload to JSON and publishes it with attrs.
func (p *Publisher) Publish(ctx context.Context, payload any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Name implements the period sink contract.
func (p *Publisher) Name() string {
	return "pubsub"
}

// Deliver announces a merged period.
func (p *Publisher) Deliver(ctx context.Context, res assemble.Result) error {
	n := Notification{
		RunID:   p.runID,
		Label:   res.Label,
		Month:   res.Month.Format("2006-01"),
		Path:    res.Path,
		URI:     res.URI,
		Records: res.Count,
		SHA256:  res.SHA256,
	}
	id, err := p.Publish(ctx, n, map[string]string{"label": n.Label, "month": n.Month})
	if err != nil {
		return err
	}
	p.logger.Info("period announced", zap.String("message_id", id), zap.String("month", n.Month))
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() {
	p.topic.Stop()
}
