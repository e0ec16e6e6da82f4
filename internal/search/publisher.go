package search

import (
	"context"
	"encoding/json"
	stdErrors "errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/platewise-backend/internal/catalog"
	"github.com/angelmondragon/platewise-backend/pkg/pubsub"
	"go.uber.org/multierr"
)

// PubSubPublisher ships price observations to the configured Pub/Sub topic,
// one message per observation so the worker can ack them independently.
type PubSubPublisher struct {
	pub *gcppubsub.Publisher
}

// NewPubSubPublisher wires the price topic from the shared Pub/Sub client.
func NewPubSubPublisher(client *pubsub.Client) (*PubSubPublisher, error) {
	if client == nil {
		return nil, stdErrors.New("pubsub client is required")
	}
	pub := client.PricePublisher()
	if pub == nil {
		return nil, stdErrors.New("price topic is not configured")
	}
	return &PubSubPublisher{pub: pub}, nil
}

// PublishPriceObservations publishes the batch and returns the combined error
// of any failed messages; the rest still go out.
func (p *PubSubPublisher) PublishPriceObservations(ctx context.Context, observations []catalog.PriceObservation) error {
	var errs error
	results := make([]*gcppubsub.PublishResult, 0, len(observations))
	for _, obs := range observations {
		data, err := json.Marshal(obs)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		results = append(results, p.pub.Publish(ctx, &gcppubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"distributor_id": obs.DistributorID.String(),
			},
		}))
	}
	for _, result := range results {
		if _, err := result.Get(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
