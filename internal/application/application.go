package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/advisory"
	"github.com/psds-microservice/agri-support-service/internal/auth"
	"github.com/psds-microservice/agri-support-service/internal/classifier"
	"github.com/psds-microservice/agri-support-service/internal/config"
	"github.com/psds-microservice/agri-support-service/internal/database"
	"github.com/psds-microservice/agri-support-service/internal/handler"
	"github.com/psds-microservice/agri-support-service/internal/imagestore"
	"github.com/psds-microservice/agri-support-service/internal/kafka"
	"github.com/psds-microservice/agri-support-service/internal/router"
	"github.com/psds-microservice/agri-support-service/internal/service"
	"github.com/psds-microservice/agri-support-service/internal/store"
	"golang.org/x/sync/errgroup"
)

// Store is an opened request store plus what it needs to shut down.
type Store struct {
	store.Store
	Ping  handler.Checker
	Close func() error
}

// OpenStore migrates and connects the configured backend.
func OpenStore(cfg *config.Config) (*Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Printf("store: using in-memory store, data is lost on exit")
		return &Store{
			Store: store.NewMemoryStore(),
			Ping:  func(context.Context) error { return nil },
			Close: func() error { return nil },
		}, nil
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return &Store{
		Store: store.NewGormStore(db),
		Ping:  sqlDB.PingContext,
		Close: sqlDB.Close,
	}, nil
}

// API is the HTTP server application.
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	store    *Store
	producer *kafka.Producer
}

// NewAPI wires dependencies and routes.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicRequests)
	if !producer.Enabled() {
		log.Printf("kafka: KAFKA_BROKERS not set, lifecycle events are not published")
	}
	images := imagestore.New(cfg.UploadDir)
	cls := classifier.NewClient(cfg.Classifier.URL, cfg.Classifier.Timeout)
	adv := advisory.NewClient(cfg.Advisory.WebhookURL, cfg.Advisory.Timeout)
	if cfg.Advisory.WebhookURL == "" {
		log.Printf("advisory: ADVISORY_WEBHOOK_URL not set, requests are filed without advice")
	}

	requests := service.NewRequestService(st, images, producer)
	chat := service.NewChatService(st, producer)
	views := service.NewAssignmentService(st)
	workflow := service.NewWorkflowService(cls, adv, requests)

	engine := router.New(router.Handlers{
		Requests: handler.NewRequestHandler(requests, views, cfg.MaxUploadBytes),
		Chat:     handler.NewChatHandler(chat),
		ML:       handler.NewMLHandler(workflow, cls.Health, cfg.MaxUploadBytes),
		Files:    handler.NewFileHandler(images),
		Ready:    map[string]handler.Checker{"store": st.Ping},
		Auth: auth.New(st, auth.Options{
			Secret:            cfg.Auth.JWTSecret,
			TrustCallerHeader: cfg.Auth.TrustCallerHeader,
		}).Middleware(),
	})
	// multipart parts above this size spill to temp files
	engine.MaxMultipartMemory = cfg.MaxUploadBytes

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// predict-and-create waits on the classifier and the advisory webhook
		WriteTimeout: cfg.Classifier.Timeout + cfg.Advisory.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &API{cfg: cfg, httpSrv: httpSrv, store: st, producer: producer}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Swagger spec:  %s/swagger/openapi.json", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Metrics:       %s/metrics", base)
	log.Printf("  API v1:        %s/api/v1/", base)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	err := g.Wait()

	if cerr := a.producer.Close(); cerr != nil {
		log.Printf("kafka: close: %v", cerr)
	}
	if cerr := a.store.Close(); cerr != nil {
		log.Printf("store: close: %v", cerr)
	}
	return err
}
