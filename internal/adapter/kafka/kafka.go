package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/lovoo/goka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/pkg/schema"
)

var (
	ErrTooFewOpts       = errors.New("too few options")
	ErrInvalidValueType = errors.New("invalid value type")
)

// Security holds optional TLS and SASL/PLAIN settings shared by the
// franz-go clients and goka.
type Security struct {
	TLSConfig *tls.Config
	User      string
	Pass      string
}

// NewSecurity loads the broker certificates when ca is set.
func NewSecurity(ca, cert, key, user, pass string) (Security, error) {
	s := Security{User: user, Pass: pass}
	if ca == "" {
		return s, nil
	}
	tlsCfg, err := adapter.MakeTLSConfig(ca, cert, key)
	if err != nil {
		return Security{}, opErr(err, "NewSecurity")
	}
	s.TLSConfig = tlsCfg
	return s, nil
}

func (s Security) ClientOpts() []kgo.Opt {
	var opts []kgo.Opt
	if s.TLSConfig != nil {
		opts = append(opts, kgo.DialTLSConfig(s.TLSConfig))
	}
	if s.User != "" {
		opts = append(opts, kgo.SASL(plain.Auth{User: s.User, Pass: s.Pass}.AsMechanism()))
	}
	return opts
}

type ProducerOpt func(*producerOpts) error

type producerOpts struct {
	cl      ProducerClient
	encoder Encoder
}

func ProducerClientOpt(
	ctx context.Context, seedBrokers []string, topic string, sec Security,
) ProducerOpt {
	return func(opts *producerOpts) error {
		kopts := append([]kgo.Opt{
			kgo.SeedBrokers(seedBrokers...),
			kgo.DefaultProduceTopicAlways(),
			kgo.DefaultProduceTopic(topic),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.AllowAutoTopicCreation(),
		}, sec.ClientOpts()...)

		cl, err := kgo.NewClient(kopts...)
		if err != nil {
			return err
		}

		if err := cl.Ping(ctx); err != nil {
			cl.Close()
			return err
		}
		opts.cl = cl
		return nil
	}
}

// ProducerOptClient sets a ready client. Tests use it with a fake.
func ProducerOptClient(cl ProducerClient) ProducerOpt {
	return func(opts *producerOpts) error {
		if cl == nil {
			return errors.New("producer client is nil")
		}
		opts.cl = cl
		return nil
	}
}

func ProducerEncoderOpt(encoder Encoder) ProducerOpt {
	return func(opts *producerOpts) error {
		if encoder == nil {
			return errors.New("encoder is nil")
		}
		opts.encoder = encoder
		return nil
	}
}

type ProducerClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

type Encoder interface {
	Encode(v any) ([]byte, error)
}

type Decoder interface {
	Decode(b []byte, v any) error
}

type Serde interface {
	Encoder
	Decoder
}

func withNonlogProcOpt() goka.ProcessorOption {
	return goka.WithLogger(log.New(io.Discard, "", 0))
}

// applySASLTLS configures the global sarama config goka builds its
// clients from.
func applySASLTLS(sec Security) {
	if sec.TLSConfig == nil && sec.User == "" {
		return
	}
	cfg := goka.DefaultConfig()
	if sec.TLSConfig != nil {
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = sec.TLSConfig
	}
	if sec.User != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = "PLAIN"
		cfg.Net.SASL.User = sec.User
		cfg.Net.SASL.Password = sec.Pass
	}
	goka.ReplaceGlobalConfig(cfg)
}

func makeOp(s ...string) string {
	return strings.Join(s, ".")
}

func opErr(err error, op ...string) error {
	return fmt.Errorf("%s: %w", makeOp(op...), err)
}

func orderPlacedToSchemaV1(v domain.OrderPlaced) (s schema.OrderPlacedV1) {
	s.OrderID = v.OrderID
	s.Provider = v.Provider
	s.Currency = v.Currency
	s.Total = v.Total
	s.CreatedAt = v.CreatedAt

	s.Items = make([]schema.OrderItemV1, len(v.Items))
	for i, it := range v.Items {
		s.Items[i] = schema.OrderItemV1{
			ID:    it.ID,
			Name:  it.Name,
			Price: it.Price,
			Qty:   it.Qty,
		}
	}
	return
}
