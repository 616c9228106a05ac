package live

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSFeed shares change notifications between service instances over core
// NATS subjects named "<prefix>.<kind>.<key>", where key is the base64url form
// of everything after the topic's first dot. Ids may contain '.', '*', '>'
// or spaces, none of which can reach the subject.
type NATSFeed struct {
	nc     *nats.Conn
	prefix string
}

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url, prefix string) (*NATSFeed, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSFeed{nc: nc, prefix: prefix}, nil
}

func (f *NATSFeed) subject(topic string) string {
	return f.prefix + "." + subjectTokens(topic)
}

func subjectTokens(topic string) string {
	kind, key, found := strings.Cut(topic, ".")
	if !found {
		return kind
	}
	if key == "" {
		// base64url output is never a lone underscore
		return kind + "._"
	}
	return kind + "." + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (f *NATSFeed) Publish(_ context.Context, topic string) error {
	if err := f.nc.Publish(f.subject(topic), []byte(changedPayload)); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

func (f *NATSFeed) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	s := newSignal()
	sub, err := f.nc.Subscribe(f.subject(topic), func(*nats.Msg) {
		s.notify()
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	// Flush makes sure the server registered the interest before we return.
	if err := f.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		s.close()
	}()

	return s.ch, nil
}

func (f *NATSFeed) Close() error {
	f.nc.Close()
	return nil
}
