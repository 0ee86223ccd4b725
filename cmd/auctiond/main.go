package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/draftkit/teamauction/internal/api"
	"github.com/draftkit/teamauction/internal/auction"
	"github.com/draftkit/teamauction/internal/auction/gateway"
	"github.com/draftkit/teamauction/internal/auction/repo"
	"github.com/draftkit/teamauction/internal/auction/stream"
	"github.com/draftkit/teamauction/internal/auction/timer"
	"github.com/draftkit/teamauction/internal/auth"
	"github.com/draftkit/teamauction/internal/config"
	"github.com/draftkit/teamauction/internal/league"
	"github.com/draftkit/teamauction/internal/presence"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repository, err := repo.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repository.Close()

	publisher, err := stream.NewPublisher(streamConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer publisher.Close()

	presenceStore, err := presence.New(cfg.RedisAddr, cfg.PresenceTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer presenceStore.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	leagues := league.NewClient(cfg.LeagueServiceURL)
	clock := clockwork.NewRealClock()

	// The engine, timer manager and gateway reference each other; the timer
	// callback and the gateway's engine handle are bound after construction.
	var engine *auction.Engine
	deadlines := timer.NewManager(clock, func(auctionID uuid.UUID, lotID string) {
		engine.HandleExpiry(auctionID, lotID)
	})

	connManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), nil, presenceStore)
	engine = auction.NewEngine(repository, auction.FanOut{connManager, publisher}, deadlines, clock)
	defer engine.Close()
	connManager.SetEngine(engine)

	if err := engine.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore in-flight auctions")
	}

	wsHandler := gateway.NewWebSocketHandler(connManager, verifier)
	apiHandler := api.NewHandler(engine, leagues, verifier)
	apiHandler.Defaults = cfg.Defaults

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/ws/auction", wsHandler.HandleAuctionConnection)
	r.Get("/ws/stats", wsHandler.HandleConnectionStats)
	apiHandler.Routes(r)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// A node can also run as a pure gateway for auctions hosted elsewhere;
	// deltas for those rooms arrive over JetStream instead of the local
	// engine fan-out.
	var consumer *stream.Consumer
	if nodeName := os.Getenv("GATEWAY_NODE_NAME"); nodeName != "" {
		cc := stream.DefaultConsumerConfig(nodeName)
		cc.URL = cfg.NATSURL
		consumer, err = stream.NewConsumer(connManager, cc)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create stream consumer")
		}
		defer consumer.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		connManager.Start(gctx)
		return nil
	})
	if consumer != nil {
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}
	g.Go(func() error {
		publisher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service exited with error")
	}
	log.Info().Msg("auction service shutdown complete")
}

func streamConfig(cfg *config.Config) stream.JetStreamConfig {
	sc := stream.DefaultJetStreamConfig()
	sc.URL = cfg.NATSURL
	return sc
}
