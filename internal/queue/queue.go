// Package queue owns the NSQ producer and consumer used by the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/nsqio/go-nsq"
)

var ErrNotStarted = errors.New("consumer not started")

type Options struct {
	Topic       string
	Channel     string
	NSQDHost    string
	NSQLookupd  string
	MaxAttempts uint16
	Concurrency int
}

// Publisher is the narrow producer surface used outside this package.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Client publishes to and consumes from one NSQ topic/channel pair.
type Client struct {
	opts     Options
	producer Publisher
	consumer *nsq.Consumer
}

func NewClient(opts Options, producer Publisher) *Client {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Client{opts: opts, producer: producer}
}

func (c *Client) Publish(topic string, body []byte) error {
	return c.producer.Publish(topic, body)
}

// Start connects a consumer and runs handler with the configured concurrency.
// Lookupd discovery is preferred when configured.
func (c *Client) Start(handler nsq.Handler) error {
	cfg := nsq.NewConfig()
	cfg.MaxAttempts = c.opts.MaxAttempts
	cfg.MaxInFlight = c.opts.Concurrency

	consumer, err := nsq.NewConsumer(c.opts.Topic, c.opts.Channel, cfg)
	if err != nil {
		return fmt.Errorf("nsq consumer: %w", err)
	}
	consumer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	consumer.AddConcurrentHandlers(handler, c.opts.Concurrency)

	if c.opts.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(c.opts.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(c.opts.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return fmt.Errorf("nsq connect: %w", err)
	}

	c.consumer = consumer
	slog.Info("nsq consumer started", "topic", c.opts.Topic, "channel", c.opts.Channel, "concurrency", c.opts.Concurrency)
	return nil
}

// Stop stops taking new messages and waits for in-flight handlers until ctx
// is done.
func (c *Client) Stop(ctx context.Context) error {
	if c.consumer == nil {
		return ErrNotStarted
	}
	c.consumer.Stop()
	select {
	case <-c.consumer.StopChan:
		slog.Info("nsq consumer drained", "topic", c.opts.Topic)
		return nil
	case <-ctx.Done():
		slog.Warn("nsq consumer drain timed out", "topic", c.opts.Topic)
		return ctx.Err()
	}
}

// CreateTopic asks nsqd over HTTP to create topic so lookupd consumers do not
// see 404s before the first publish.
func CreateTopic(ctx context.Context, client *http.Client, nsqdHTTP, topic string) error {
	u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create topic %s: status %d", topic, resp.StatusCode)
	}
	return nil
}

type nsqLogger struct{}

func (nsqLogger) Output(_ int, s string) error {
	slog.Debug("nsq", "msg", s)
	return nil
}
