package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/pkg/schema"
)

var _ port.OrderEventsPublisher = (*OrderEventsProducer)(nil)

const (
	HeaderEventType = "event-type"
	HeaderProvider  = "provider"

	EventOrderPlaced = "order.placed"
)

// A producer is used for composition.
//
// Producing records to kafka broker and closing underlying [kgo.Client].
type producer struct {
	opPrefix string
	cl       ProducerClient
}

func (p producer) close() {
	const op = "close"
	log := slog.With("op", makeOp(p.opPrefix, op))
	log.Info("closing producer...")
	p.cl.Close()
	log.Info("producer is closed")
}

func (p producer) produce(
	ctx context.Context, rs ...*kgo.Record,
) error {
	const op = "produce"
	res := p.cl.ProduceSync(ctx, rs...)
	if err := res.FirstErr(); err != nil {
		return opErr(err, p.opPrefix, op)
	}
	return nil
}

// An OrderEventsProducer publishes [domain.OrderPlaced] keyed by order id.
type OrderEventsProducer struct {
	producer producer
	encoder  Encoder
	opPrefix string
}

func NewOrderEventsProducer(
	opts ...ProducerOpt,
) (OrderEventsProducer, error) {
	const op = "NewOrderEventsProducer"

	if len(opts) != 2 {
		panic(opErr(ErrTooFewOpts, op)) // develop mistake
	}

	var options producerOpts
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return OrderEventsProducer{}, opErr(err, op)
		}
	}

	opPrefix := "OrderEventsProducer"
	p := producer{
		opPrefix: opPrefix,
		cl:       options.cl,
	}

	return OrderEventsProducer{
		encoder:  options.encoder,
		producer: p,
		opPrefix: opPrefix,
	}, nil
}

func (p OrderEventsProducer) Close() {
	p.producer.close()
}

func (p OrderEventsProducer) PublishOrderPlaced(
	ctx context.Context, evt domain.OrderPlaced,
) error {
	const op = "PublishOrderPlaced"

	if err := ctx.Err(); err != nil {
		return opErr(err, p.opPrefix, op)
	}

	r, err := p.createRecord(evt)
	if err != nil {
		return opErr(err, p.opPrefix, op)
	}

	if err := p.producer.produce(ctx, r); err != nil {
		return opErr(err, p.opPrefix, op)
	}

	slog.Info("order event produced",
		"op", makeOp(p.opPrefix, op), "orderID", evt.OrderID)
	return nil
}

func (p OrderEventsProducer) createRecord(
	v domain.OrderPlaced,
) (*kgo.Record, error) {
	const op = "createRecord"

	s := p.toSchema(v)
	b, err := p.encoder.Encode(s)
	if err != nil {
		return nil, opErr(err, p.opPrefix, op)
	}

	r := &kgo.Record{
		Key:   []byte(s.OrderID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(EventOrderPlaced)},
			{Key: HeaderProvider, Value: []byte(v.Provider)},
		},
	}
	if v.CreatedAt > 0 {
		r.Timestamp = time.UnixMilli(v.CreatedAt)
	}
	return r, nil
}

func (OrderEventsProducer) toSchema(v domain.OrderPlaced) schema.OrderPlacedV1 {
	return orderPlacedToSchemaV1(v)
}
