package events

import (
	"encoding/json"
	"log"
	"time"

	"hqms/queue-service/internal/models"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "queue."

type envelope struct {
	Event     string            `json:"event"`
	Token     models.QueueToken `json:"token"`
	CreatedAt time.Time         `json:"created_at"`
}

// NATSPublisher emits token lifecycle events on queue.token.* subjects.
// Publishing is best-effort: failures are logged and never fail the
// originating operation.
type NATSPublisher struct {
	conn *nats.Conn
}

func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(event string, token models.QueueToken) {
	payload, err := json.Marshal(envelope{
		Event:     event,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("marshal event %s: %v", event, err)
		return
	}
	if err := p.conn.Publish(subjectPrefix+event, payload); err != nil {
		log.Printf("publish event %s: %v", event, err)
	}
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, models.QueueToken) {}
