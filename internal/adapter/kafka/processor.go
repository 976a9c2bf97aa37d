package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/lovoo/goka"

	"github.com/niksmo/twin-supply/pkg/schema"
)

// A processor is used for composition.
//
// Running and closing the underlying [goka.Processor]
type processor struct {
	opPrefix string
	gp       *goka.Processor
}

func (p *processor) run(
	ctx context.Context, stopFn context.CancelFunc, wg *sync.WaitGroup,
) {
	const op = "run"
	log := slog.With("op", makeOp(p.opPrefix, op))

	defer wg.Done()

	go p.runProc(ctx, stopFn)

	log.Info("preparing...")
	p.waitForReady(ctx)
	log.Info("running")
}

func (p *processor) runProc(ctx context.Context, stopFn context.CancelFunc) {
	const op = "run"
	log := slog.With("op", makeOp(p.opPrefix, op))

	defer stopFn()

	err := p.gp.Run(ctx)
	if err != nil {
		log.Error("stopped", "err", err)
		return
	}
	log.Info("stopped")
}

func (p *processor) waitForReady(ctx context.Context) {
	const op = "waitForReady"
	log := slog.With("op", makeOp(p.opPrefix, op))

	err := p.gp.WaitForReadyContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("fall down while preparing", "err", err)
		return
	}
}

func (p *processor) close() {
	const op = "close"
	log := slog.With("op", makeOp(p.opPrefix, op))

	log.Info("closing processor...")
	p.gp.Stop()
	log.Info("processor is closed")
}

// An orderEventCodec used for serde [schema.OrderPlacedV1]
type orderEventCodec struct {
	serde Serde
}

func newOrderEventCodec(s Serde) orderEventCodec {
	return orderEventCodec{s}
}

func (c orderEventCodec) Encode(v any) ([]byte, error) {
	const op = "orderEventCodec.Encode"
	if _, ok := v.(schema.OrderPlacedV1); !ok {
		return nil, opErr(ErrInvalidValueType, op)
	}
	return c.serde.Encode(v)
}

func (c orderEventCodec) Decode(data []byte) (any, error) {
	const op = "orderEventCodec.Decode"
	var s schema.OrderPlacedV1
	err := c.serde.Decode(data, &s)
	if err != nil {
		return nil, opErr(err, op)
	}
	return s, nil
}

// A unitsCodec used for serde units counters as decimal text.
type unitsCodec struct{}

func (unitsCodec) Encode(v any) ([]byte, error) {
	const op = "unitsCodec.Encode"
	n, ok := v.(int64)
	if !ok {
		return nil, opErr(ErrInvalidValueType, op)
	}
	return strconv.AppendInt(nil, n, 10), nil
}

func (unitsCodec) Decode(data []byte) (any, error) {
	const op = "unitsCodec.Decode"
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, opErr(err, op)
	}
	return n, nil
}

// A SalesProcessor counts units sold per product.
//
// Order events are fanned out per item through the group loopback so the
// group table is keyed by product id.
type SalesProcessor struct {
	opPrefix string
	proc     processor
}

func NewSalesProcessor(
	seedBrokers []string,
	inputStream string,
	group string,
	orderSerde Serde,
	sec Security,
	opts ...goka.ProcessorOption,
) (*SalesProcessor, error) {
	const op = "NewSalesProcessor"

	applySASLTLS(sec)

	p := SalesProcessor{opPrefix: "SalesProcessor"}

	gg := p.define(group, inputStream, newOrderEventCodec(orderSerde))

	opts = append([]goka.ProcessorOption{withNonlogProcOpt()}, opts...)
	gp, err := goka.NewProcessor(seedBrokers, gg, opts...)
	if err != nil {
		return nil, opErr(err, op)
	}

	p.proc = processor{
		opPrefix: p.opPrefix,
		gp:       gp,
	}

	return &p, nil
}

func (p *SalesProcessor) define(group, inputStream string, c goka.Codec) *goka.GroupGraph {
	return goka.DefineGroup(goka.Group(group),
		goka.Input(goka.Stream(inputStream), c, p.splitOrder),
		goka.Loopback(unitsCodec{}, p.addUnits),
		goka.Persist(unitsCodec{}),
	)
}

// SalesTopics returns the group table and loopback topics of the sales
// group. Both must exist before the processor starts.
func SalesTopics(group, inputStream string) (table, loopback string) {
	var p SalesProcessor
	gg := p.define(group, inputStream, unitsCodec{})
	return gg.GroupTable().Topic(), gg.LoopStream().Topic()
}

func (p *SalesProcessor) Run(
	ctx context.Context, stopFn context.CancelFunc, wg *sync.WaitGroup,
) {
	p.proc.run(ctx, stopFn, wg)
}

func (p *SalesProcessor) Close() {
	p.proc.close()
}

func (p *SalesProcessor) splitOrder(ctx goka.Context, msg any) {
	const op = "splitOrder"

	evt, ok := msg.(schema.OrderPlacedV1)
	if !ok {
		return
	}
	for _, it := range evt.Items {
		if it.Qty <= 0 {
			continue
		}
		ctx.Loopback(strconv.FormatInt(it.ID, 10), int64(it.Qty))
	}
	slog.Debug("order split", "op", makeOp(p.opPrefix, op),
		"orderID", evt.OrderID, "nItems", len(evt.Items))
}

func (p *SalesProcessor) addUnits(ctx goka.Context, msg any) {
	delta, _ := msg.(int64)
	current, _ := ctx.Value().(int64)
	ctx.SetValue(current + delta)
}
