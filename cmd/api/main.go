package main

import (
	"context"
	"time"

	availrepo "lessonbook/internal/availability/repository"
	availservice "lessonbook/internal/availability/service"
	"lessonbook/internal/bookings/handler"
	"lessonbook/internal/bookings/repository"
	"lessonbook/internal/bookings/service"
	"lessonbook/internal/calendar"
	"lessonbook/internal/events"
	"lessonbook/pkg/app"
	"lessonbook/pkg/config"
	"lessonbook/pkg/kafka"
)

const ServiceName = "api"

func main() {
	cfg := config.Load(ServiceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}

	cfg.LogConfiguration()
	cfg.SetMongo()
	defer cfg.Client.GracefulShutdown()

	cfg.Log.Info("Starting Lessonbook API service")

	availabilitySvc, reservationSvc := initServices(cfg)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, handler.NewBookingHandler(availabilitySvc, reservationSvc, cfg))
	serverApp.Run()
}

func initServices(cfg *config.Config) (availservice.AvailabilityService, service.ReservationService) {
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewMongoLockRepository(cfg)
	ruleRepo := availrepo.NewMongoRuleRepository(cfg)

	busy := calendar.Multi{calendar.NewStoreSource(bookingRepo)}

	var mirror calendar.Mirror
	if cfg.CalendarCredentialsFile != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		gcal, err := calendar.NewGoogleClient(ctx, cfg.CalendarCredentialsFile)
		if err != nil {
			cfg.Log.Fatal("Failed to initialize Google Calendar client", "error", err)
		}
		mirror = gcal
		if len(cfg.CalendarIDs) > 0 {
			busy = append(busy, calendar.NewGoogleSource(gcal, cfg.CalendarIDs, cfg.Log))
		}
		cfg.Log.Info("Google Calendar integration enabled", "calendars", len(cfg.CalendarIDs))
	} else {
		cfg.Log.Info("Google Calendar integration disabled, using internal store only")
	}

	publisher := initPublisher(cfg)

	availabilitySvc := availservice.NewAvailabilityService(ruleRepo, busy, cfg)
	reservationSvc := service.NewReservationService(
		bookingRepo,
		lockRepo,
		busy,
		mirror,
		publisher,
		cfg,
	)

	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)
	return availabilitySvc, reservationSvc
}

func initPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Info("Kafka publishing disabled, no brokers configured")
		return events.NopPublisher{}
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaBookingTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize Kafka producer", "error", err)
	}

	cfg.Log.Info("Kafka publishing enabled", "topic", cfg.KafkaBookingTopic)
	return events.NewKafkaPublisher(producer, cfg.Log)
}
