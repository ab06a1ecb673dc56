package main

import (
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/eventbus"
	"github.com/zaHanley/code-racer/go/internal/gateway"
	"github.com/zaHanley/code-racer/go/internal/matchmaker"
	"github.com/zaHanley/code-racer/go/internal/race"
	racedb "github.com/zaHanley/code-racer/go/internal/race/db"
	"github.com/zaHanley/code-racer/go/internal/race/repository"
)

type Services struct {
	Coordinator *race.Coordinator
	Gateway     *gateway.Service
	Bus         *eventbus.Publisher
}

func setupServices(database *sql.DB, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → Coordinator → Gateway

	queries := racedb.New(database)
	raceRepo := repository.NewRepository(queries)

	// Lifecycle event bus is optional; the coordinator takes a nil publisher
	// when NATS is not configured.
	var bus *eventbus.Publisher
	var publisher race.Publisher
	if config.Nats.URL != "" {
		var err error
		bus, err = eventbus.Connect(config.Nats.URL)
		if err != nil {
			return nil, err
		}
		publisher = bus
	} else {
		log.Info().Msg("NATS not configured; lifecycle events disabled")
	}

	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	coordinator := race.NewCoordinator(connectionManager, raceRepo, publisher, config.Race.MaxParticipantsPerRace)
	mm := matchmaker.NewMatchmaker(coordinator.Registry(), raceRepo, config.Race.MaxParticipantsPerRace)
	gatewayService := gateway.NewService(connectionManager, coordinator, mm)

	return &Services{
		Coordinator: coordinator,
		Gateway:     gatewayService,
		Bus:         bus,
	}, nil
}
