package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"kstat-sampler/internal/metrics"
)

// Header keys set on every published message.
const (
	HeaderHost  = "Kstat-Host"
	HeaderCycle = "Kstat-Cycle"
)

type conn interface {
	PublishMsg(m *nats.Msg) error
	IsConnected() bool
	Close()
}

type Publisher struct {
	conn    conn
	subject string
}

func NewPublisher(natsURL, subject string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("kstat-sampler"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Sampler connected to NATS at %s", natsURL)

	return &Publisher{conn: nc, subject: subject}, nil
}

// PublishSnapshot sends the snapshot as JSON on the configured subject.
func (p *Publisher) PublishSnapshot(snap metrics.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(HeaderHost, snap.Host)
	msg.Header.Set(HeaderCycle, fmt.Sprint(snap.Cycle))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

type failureEvent struct {
	Host      string    `json:"host"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// PublishFailure reports a failed cycle on "<subject>.failures".
func (p *Publisher) PublishFailure(host string, at time.Time, cause error) error {
	data, err := json.Marshal(failureEvent{Host: host, Timestamp: at.UTC(), Error: cause.Error()})
	if err != nil {
		return fmt.Errorf("failed to marshal failure: %w", err)
	}

	msg := nats.NewMsg(p.subject + ".failures")
	msg.Data = data
	msg.Header.Set(HeaderHost, host)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish failure: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		log.Printf("Sampler disconnected from NATS")
	}
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
