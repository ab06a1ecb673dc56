package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

const (
	subjectRaceStarted = "race.events.started"
	subjectRaceEnded   = "race.events.ended"

	maxReconnects = 10
	reconnectWait = 2 * time.Second
)

// Publisher pushes race lifecycle events onto NATS so downstream consumers
// (leaderboards, analytics) can react without coupling to the coordinator.
// Publishing is best-effort: failures are logged, never surfaced.
type Publisher struct {
	nc *nats.Conn
}

// Connect dials NATS with reconnect handling.
func Connect(natsURL string) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Publisher{nc: nc}, nil
}

// PublishRaceStarted emits a RaceStarted lifecycle event.
func (p *Publisher) PublishRaceStarted(raceID uuid.UUID, startedAt time.Time) {
	p.publish(subjectRaceStarted, raceID, events.EventTypeRaceStarted, events.RaceStartedPayload{
		RaceID:    raceID.String(),
		StartedAt: startedAt,
	})
}

// PublishRaceEnded emits a RaceEnded lifecycle event.
func (p *Publisher) PublishRaceEnded(raceID uuid.UUID, endedAt time.Time) {
	p.publish(subjectRaceEnded, raceID, events.EventTypeRaceEnded, events.RaceEndedPayload{
		RaceID:  raceID.String(),
		EndedAt: endedAt,
	})
}

func (p *Publisher) publish(subject string, raceID uuid.UUID, eventType events.EventType, payload any) {
	evt, err := events.New(raceID, eventType, time.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to build bus event")
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal bus event")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).
			Str("subject", subject).
			Str("race_id", raceID.String()).
			Msg("failed to publish bus event")
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
