package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialTimeout   = 2 * time.Second
	redialBackoff = 5 * time.Second
)

// errBrokerDown is returned while a failed dial is backing off.
var errBrokerDown = errors.New("rabbitmq unavailable, retrying later")

// Publisher keeps one AMQP connection and channel open and publishes
// persistent JSON messages to the topic exchange.  A broken connection is
// re-dialled on the next publish, at most once per redialBackoff.
type Publisher struct {
	url      string
	exchange string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewPublisher dials url and declares exchange.  The error is returned so
// the caller can decide to run without events.
func NewPublisher(url, exchange string) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		p.nextDial = time.Now().Add(redialBackoff)
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends ev with its Type as routing key.
func (p *Publisher) Publish(ctx context.Context, ev AppointmentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		if time.Now().Before(p.nextDial) {
			return errBrokerDown
		}
		if err := p.connectLocked(); err != nil {
			log.Printf("rabbitmq: reconnect failed: %v", err)
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq: publish %s failed: %v", ev.Type, err)
		// A failed channel is unusable; drop it so the next publish redials.
		_ = p.ch.Close()
		_ = p.conn.Close()
		p.conn, p.ch = nil, nil
	}
	return err
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn, p.ch = nil, nil
		return err
	}
	return nil
}
