package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"
)

const Channel = "quill"

// Binding routes one topic to its handler.
type Binding struct {
	Topic   string
	Handler nsq.Handler
}

type Options struct {
	NSQLookupd string
	// NSQDHost is used when no lookupd is configured.
	NSQDHost    string
	MaxAttempts uint16
	MsgTimeout  time.Duration
}

// Start connects one consumer per binding. Tasks on a topic run one at a time.
func Start(opts Options, bindings ...Binding) ([]*nsq.Consumer, error) {
	consumers := make([]*nsq.Consumer, 0, len(bindings))
	for _, b := range bindings {
		cfg := nsq.NewConfig()
		cfg.MaxInFlight = 1
		if opts.MaxAttempts > 0 {
			cfg.MaxAttempts = opts.MaxAttempts
		}
		if opts.MsgTimeout > 0 {
			cfg.MsgTimeout = opts.MsgTimeout
		}

		c, err := nsq.NewConsumer(b.Topic, Channel, cfg)
		if err != nil {
			Stop(consumers)
			return nil, fmt.Errorf("failed to create consumer for %s: %w", b.Topic, err)
		}
		c.AddHandler(b.Handler)

		if opts.NSQLookupd != "" {
			err = c.ConnectToNSQLookupd(opts.NSQLookupd)
		} else {
			err = c.ConnectToNSQD(opts.NSQDHost)
		}
		if err != nil {
			c.Stop()
			Stop(consumers)
			return nil, fmt.Errorf("failed to connect consumer for %s: %w", b.Topic, err)
		}

		slog.Info("consumer connected", "topic", b.Topic, "channel", Channel)
		consumers = append(consumers, c)
	}
	return consumers, nil
}

func Stop(consumers []*nsq.Consumer) {
	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
}
