package changefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/louisbranch/residency/internal/platform/timeouts"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
)

// Config addresses the Kafka topic carrying notices.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("at least one broker is required")
	}
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("topic is required")
	}
	if strings.TrimSpace(c.GroupID) == "" {
		return errors.New("consumer group is required")
	}
	return nil
}

// Warmer precomputes timelines.
type Warmer interface {
	Warm(ctx context.Context, subjects ...timeline.Subject) int
}

// messageReader is the slice of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads notices and warms the timelines they name.
type Consumer struct {
	reader messageReader
	warmer Warmer
	poll   time.Duration
	label  string

	closeOnce sync.Once
	closeErr  error
}

// NewConsumer opens a consumer-group reader on cfg.Topic.
func NewConsumer(cfg Config, warmer Warmer) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("change feed config: %w", err)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
	})
	c := newConsumer(reader, warmer, cfg.PollTimeout)
	c.label = fmt.Sprintf("%s@%s", cfg.Topic, strings.Join(cfg.Brokers, ","))
	return c, nil
}

func newConsumer(reader messageReader, warmer Warmer, poll time.Duration) *Consumer {
	if poll <= 0 {
		poll = timeouts.ChangeFeedPoll
	}
	return &Consumer{reader: reader, warmer: warmer, poll: poll, label: "change feed"}
}

// Close stops the underlying reader. Repeated calls return the first result.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	c.closeOnce.Do(func() { c.closeErr = c.reader.Close() })
	return c.closeErr
}

// Run consumes until ctx ends or the reader is closed. Undecodable messages
// are logged, committed and skipped. Other fetch failures are retried after
// one poll interval.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("change feed consuming %s", c.label)
	defer log.Printf("change feed stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			log.Printf("change feed fetch: %v", err)
			if err := sleep(ctx, c.poll); err != nil {
				return err
			}
			continue
		}

		c.handle(ctx, msg)

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			log.Printf("change feed commit offset %d: %v", msg.Offset, err)
		}
		commitCancel()
	}
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	notice, err := DecodeNotice(msg.Value)
	if err != nil {
		log.Printf("change feed skip offset %d: %v", msg.Offset, err)
		return
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeouts.Warm)
	defer cancel()
	c.warmer.Warm(warmCtx, notice.Subjects()...)
}
