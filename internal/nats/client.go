// Package nats publishes decoded passes on a JetStream feed.
package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/logger"
	"github.com/saviobatista/groundstation/internal/types"
)

const (
	// StreamPasses holds the pass feed for a week
	StreamPasses = "STATION_PASSES"
	// SubjectPasses carries one JSON FeedEntry per decoded pass
	SubjectPasses = "station.passes"

	streamMaxAge = 7 * 24 * time.Hour
)

// Client represents a NATS client
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger zerolog.Logger
}

// New connects to NATS and ensures the pass stream exists
func New(url string) (*Client, error) {
	if url == "" {
		return nil, errors.New("failed to connect to NATS: empty URL")
	}

	nc, err := nats.Connect(url, nats.Name("groundstation"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamPasses,
		Subjects: []string{SubjectPasses},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:   nc,
		js:     js,
		logger: logger.WithComponent("nats"),
	}, nil
}

// PublishPass publishes a decoded pass to the feed
func (c *Client) PublishPass(entry *types.FeedEntry) error {
	if entry == nil {
		return errors.New("failed to publish pass: nil entry")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal pass: %w", err)
	}

	if _, err := c.js.Publish(SubjectPasses, data); err != nil {
		return fmt.Errorf("failed to publish pass: %w", err)
	}
	return nil
}

// SubscribePasses delivers feed entries published from now on to handler.
// A named durable consumer resumes after the last acknowledged entry when
// the subscriber restarts; an empty name subscribes ephemerally. Malformed
// messages are logged and skipped.
func (c *Client) SubscribePasses(durable string, handler func(*types.FeedEntry)) error {
	_, err := c.js.Subscribe(SubjectPasses, func(msg *nats.Msg) {
		entry, err := DecodeEntry(msg.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed feed message")
			return
		}
		handler(entry)
	}, subscribeOptions(durable)...)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func subscribeOptions(durable string) []nats.SubOpt {
	opts := []nats.SubOpt{nats.DeliverNew(), nats.AckExplicit()}
	if durable != "" {
		opts = append(opts, nats.Durable(durable))
	}
	return opts
}

// DecodeEntry parses a feed message
func DecodeEntry(data []byte) (*types.FeedEntry, error) {
	var entry types.FeedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pass: %w", err)
	}
	if entry.RecordingID == "" {
		return nil, errors.New("feed entry without recording id")
	}
	return &entry, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
