// Package prices consumes price observations published by the search
// aggregator and folds them into the local catalog, keeping the fallback
// search path stocked with recent prices.
package prices

import (
	"context"
	"encoding/json"
	stdErrors "errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/platewise-backend/internal/catalog"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/google/uuid"
)

// Receiver is the slice of the Pub/Sub subscriber the worker pulls from.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// WorkerParams groups dependencies for the price worker.
type WorkerParams struct {
	Subscriber Receiver
	Catalog    *catalog.Service
	Logger     *logger.Logger
}

// Worker applies price observations to the catalog.
type Worker struct {
	sub        Receiver
	catalogSvc *catalog.Service
	logg       *logger.Logger
}

// NewWorker builds a price worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Subscriber == nil {
		return nil, stdErrors.New("subscriber is required")
	}
	if params.Catalog == nil {
		return nil, stdErrors.New("catalog service is required")
	}
	return &Worker{
		sub:        params.Subscriber,
		catalogSvc: params.Catalog,
		logg:       params.Logger,
	}, nil
}

// Run blocks consuming messages until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.logg != nil {
		w.logg.Info(ctx, "price worker started")
	}
	return w.sub.Receive(ctx, w.handleMessage)
}

func (w *Worker) handleMessage(ctx context.Context, msg *gcppubsub.Message) {
	ack, err := w.process(ctx, msg.Data)
	if err != nil && w.logg != nil {
		w.logg.Error(ctx, "processing price observation failed", err)
	}
	if ack {
		msg.Ack()
	} else {
		msg.Nack()
	}
}

// process applies one observation. The returned ack decides the message's
// fate: malformed payloads are acked so they never redeliver, persistence
// failures are nacked for retry.
func (w *Worker) process(ctx context.Context, data []byte) (bool, error) {
	var obs catalog.PriceObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		return true, errors.Wrap(errors.CodeParse, err, "decoding price observation")
	}
	if obs.DistributorID == uuid.Nil || obs.SKU == "" {
		return true, errors.New(errors.CodeValidation, "price observation missing distributor or sku")
	}
	if obs.PriceCents <= 0 {
		return true, errors.New(errors.CodeValidation, "price observation without a positive price")
	}

	if err := w.catalogSvc.RecordObservation(ctx, obs); err != nil {
		return false, err
	}
	return true, nil
}
