// Command server runs the rollcall membership core: credential issuing,
// scan sessions, and invitation tickets behind one HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rollcall/internal/blob"
	credentialhandler "rollcall/internal/credential/handler"
	credentialmetrics "rollcall/internal/credential/metrics"
	credentialservice "rollcall/internal/credential/service"
	credentialstore "rollcall/internal/credential/store"
	"rollcall/internal/credential/token"
	directoryhandler "rollcall/internal/directory/handler"
	directoryservice "rollcall/internal/directory/service"
	directorystore "rollcall/internal/directory/store"
	"rollcall/internal/history"
	invitehandler "rollcall/internal/invite/handler"
	invitemetrics "rollcall/internal/invite/metrics"
	inviteservice "rollcall/internal/invite/service"
	invitestore "rollcall/internal/invite/store"
	"rollcall/internal/platform/auth"
	"rollcall/internal/platform/config"
	"rollcall/internal/platform/httpserver"
	"rollcall/internal/platform/logger"
	"rollcall/internal/platform/postgres"
	platformredis "rollcall/internal/platform/redis"
	scanhandler "rollcall/internal/scan/handler"
	scanmetrics "rollcall/internal/scan/metrics"
	scanservice "rollcall/internal/scan/service"
	scanstore "rollcall/internal/scan/store"
	"rollcall/internal/storage"
	httptransport "rollcall/internal/transport/http"
)

const imageBasePath = "/credentials/images"

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis())
	if err != nil {
		return err
	}

	var blobs blob.Store
	if redisClient != nil {
		defer redisClient.Close()
		blobs = blob.NewRedis(redisClient.Client)
	} else {
		log.Warn("redis not configured, using in-memory blob store")
		blobs = blob.NewInMemory()
	}

	var recorder history.Recorder
	if len(cfg.KafkaBrokers) > 0 {
		kafkaRecorder, err := history.NewKafkaRecorder(ctx, cfg.KafkaBrokers, cfg.HistoryTopic, log)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := kafkaRecorder.Close(flushCtx); err != nil {
				log.Warn("failed to flush history events", "error", err)
			}
		}()
		recorder = kafkaRecorder
	} else {
		log.Warn("kafka not configured, usage history stays in memory")
		recorder = history.NewInMemory()
	}

	tx := storage.NewPostgresTx(db, cfg.TxTimeout)
	signer := blob.NewURLSigner(cfg.URLSigningKey, imageBasePath)

	directoryStore := directorystore.NewPostgres(db)
	directorySvc := directoryservice.New(directoryStore, directoryservice.WithLogger(log))

	credentialSvc := credentialservice.New(
		directoryStore,
		credentialstore.NewPostgres(db),
		blobs,
		token.NewCodec(cfg.CredentialSigningKey),
		signer,
		credentialservice.WithLogger(log),
		credentialservice.WithMetrics(credentialmetrics.New()),
		credentialservice.WithHistoryRecorder(recorder),
	)

	scanSvc := scanservice.New(
		scanstore.NewPostgres(db),
		tx,
		credentialSvc,
		directoryStore,
		scanservice.WithLogger(log),
		scanservice.WithMetrics(scanmetrics.New()),
		scanservice.WithHistoryRecorder(recorder),
	)

	inviteSvc := inviteservice.New(
		invitestore.NewPostgres(db),
		tx,
		directoryStore,
		cfg.BaseURL,
		inviteservice.WithLogger(log),
		inviteservice.WithMetrics(invitemetrics.New()),
		inviteservice.WithHistoryRecorder(recorder),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:       log,
		JWTValidator: auth.NewHS256Validator(cfg.AuthSigningKey),
		Directory:    directoryhandler.New(directorySvc, log),
		Credentials:  credentialhandler.New(credentialSvc, blobs, signer, log),
		Scans:        scanhandler.New(scanSvc, log),
		Invites:      invitehandler.New(inviteSvc, log),
	})

	server := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.SweepInterval > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					if _, err := inviteSvc.Sweep(groupCtx); err != nil {
						log.Warn("periodic ticket sweep failed", "error", err)
					}
				}
			}
		})
	}

	return group.Wait()
}
