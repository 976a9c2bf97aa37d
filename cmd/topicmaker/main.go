package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/niksmo/twin-supply/config"
	"github.com/niksmo/twin-supply/internal/adapter/kafka"
	"github.com/niksmo/twin-supply/pkg/sigctx"
)

const (
	partitions        = 3
	replicationFactor = 3
	minInsyncReplicas = "2"

	policyDelete  = "delete"
	policyCompact = "compact"
)

type topicSet struct {
	policy string
	topics []string
}

func main() {
	sigCtx, closeApp := sigctx.NotifyContext()
	defer closeApp()

	cfg := config.Load()
	bcfg := cfg.Events.Broker

	cl, err := createClient(bcfg)
	if err != nil {
		printFail(err)
		return
	}
	defer cl.Close()

	table, loop := kafka.SalesTopics(bcfg.Consumers.SalesGroup, bcfg.Topics.OrderPlaced)
	sets := []topicSet{
		{policyDelete, []string{bcfg.Topics.OrderPlaced, loop}},
		{policyCompact, []string{table}},
	}

	printStart(sets)
	defer printComplete(time.Now())

	for _, s := range sets {
		if err := makeTopics(sigCtx, cl, s); err != nil {
			printFail(err)
			return
		}
	}
}

func createClient(bcfg config.Broker) (*kadm.Client, error) {
	sec, err := kafka.NewSecurity(bcfg.TLS.CA, bcfg.TLS.Cert, bcfg.TLS.Key, bcfg.User, bcfg.Pass)
	if err != nil {
		return nil, err
	}
	opts := append([]kgo.Opt{kgo.SeedBrokers(bcfg.SeedBrokers...)}, sec.ClientOpts()...)
	return kadm.NewOptClient(opts...)
}

func makeTopics(ctx context.Context, cl *kadm.Client, s topicSet) error {
	minISR := minInsyncReplicas
	policy := s.policy
	cfg := map[string]*string{
		"cleanup.policy":      &policy,
		"min.insync.replicas": &minISR,
	}

	responses, err := cl.CreateTopics(ctx, partitions, replicationFactor, cfg, s.topics...)
	if err != nil {
		return err
	}

	var errs []error
	for _, res := range responses.Sorted() {
		switch {
		case errors.Is(res.Err, kerr.TopicAlreadyExists):
			fmt.Printf("topic: %q already exists\n", res.Topic)
		case res.Err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", res.Topic, res.Err))
		default:
			fmt.Printf("topic: %q created (%s)\n", res.Topic, policy)
		}
	}
	return errors.Join(errs...)
}

func printStart(sets []topicSet) {
	var b strings.Builder
	b.WriteString("initializing topics...\n")
	for _, s := range sets {
		for _, t := range s.topics {
			fmt.Fprintf(&b, "\t- %q\n", t)
		}
	}
	fmt.Println(b.String())
}

func printComplete(start time.Time) {
	fmt.Printf("\ncomplete in %s\n", time.Since(start))
}

func printFail(err error) {
	fmt.Printf("failed to create topics: \n%s\n", err)
}
