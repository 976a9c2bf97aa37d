package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/lovoo/goka"

	"github.com/niksmo/twin-supply/internal/core/port"
)

var _ port.SalesReader = (*SalesView)(nil)

// A SalesViewConfig used for setup [SalesView].
type SalesViewConfig struct {
	SeedBrokers []string
	Group       string
	Security    Security
	Options     []goka.ViewOption
}

// SalesView reads the units-sold table of [SalesProcessor].
type SalesView struct {
	gv *goka.View
}

func NewSalesView(config SalesViewConfig) (SalesView, error) {
	const op = "NewSalesView"

	applySASLTLS(config.Security)

	gv, err := goka.NewView(
		config.SeedBrokers,
		goka.GroupTable(goka.Group(config.Group)),
		unitsCodec{},
		config.Options...,
	)
	if err != nil {
		return SalesView{}, opErr(err, op)
	}

	return SalesView{gv}, nil
}

func (v SalesView) Run(ctx context.Context) {
	const op = "SalesView.Run"
	log := slog.With("op", op)

	err := v.gv.Run(ctx)
	if err != nil {
		log.Error("unexpected fail on run", "err", err)
	}
}

// UnitsSold returns 0 for products that never sold.
func (v SalesView) UnitsSold(ctx context.Context, productID int64) (int64, error) {
	const op = "SalesView.UnitsSold"

	if err := ctx.Err(); err != nil {
		return 0, opErr(err, op)
	}

	val, err := v.gv.Get(strconv.FormatInt(productID, 10))
	if err != nil {
		return 0, opErr(err, op)
	}
	if val == nil {
		return 0, nil
	}

	n, ok := val.(int64)
	if !ok {
		return 0, opErr(fmt.Errorf("%w: %T", ErrInvalidValueType, val), op)
	}
	return n, nil
}
