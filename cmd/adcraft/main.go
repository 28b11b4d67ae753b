package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/adcraftlabs/adcraft/agents"
	"github.com/adcraftlabs/adcraft/api"
	"github.com/adcraftlabs/adcraft/breaker"
	"github.com/adcraftlabs/adcraft/docstore/rediscache"
	"github.com/adcraftlabs/adcraft/docstore/sqlite"
	"github.com/adcraftlabs/adcraft/internal/config"
	"github.com/adcraftlabs/adcraft/objstore"
	"github.com/adcraftlabs/adcraft/objstore/gcs"
	"github.com/adcraftlabs/adcraft/observe"
	observeotel "github.com/adcraftlabs/adcraft/observe/otel"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/providers/gemini"
	"github.com/adcraftlabs/adcraft/providers/imagen"
	"github.com/adcraftlabs/adcraft/providers/veo"
	"github.com/adcraftlabs/adcraft/resilience"
)

func main() {
	configPath := flag.String("config", "adcraft.yaml", "path to the YAML config file")
	flag.Parse()

	// .env is a developer convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, apiKey); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("adcraft: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, apiKey string) error {
	docs, err := sqlite.New(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer docs.Close()

	var cache *rediscache.Cache
	if cfg.Redis.Addr != "" {
		cache, err = rediscache.New(cfg.Redis.Addr,
			rediscache.WithPassword(cfg.Redis.Password),
			rediscache.WithDB(cfg.Redis.DB),
		)
		if err != nil {
			// The cache is an accelerator, not a dependency.
			log.Printf("redis unavailable, continuing without session cache: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	var uploads objstore.Uploader = objstore.NewMemory()
	if cfg.GCS.Bucket != "" {
		client, err := gcs.New(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile, gcs.WithPrefix(cfg.GCS.Prefix))
		if err != nil {
			return err
		}
		defer client.Close()
		uploads = client
	} else {
		log.Print("no GCS bucket configured, assets stay in memory")
	}

	text, err := gemini.New(ctx, apiKey, gemini.WithModel(cfg.Models.Gemini))
	if err != nil {
		return err
	}
	images, err := imagen.New(ctx, apiKey, imagen.WithModel(cfg.Models.Imagen))
	if err != nil {
		return err
	}
	videos, err := veo.New(ctx, apiKey, veo.WithModel(cfg.Models.Veo))
	if err != nil {
		return err
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	})
	breakers.Register("gemini", "imagen", "veo", "storage", "docstore")

	stream := api.NewEventStream()
	logSink := observe.NewAsyncSink(observe.LogSink{}, 256)
	defer logSink.Close()
	sinks := []observe.Sink{logSink, stream}
	if cfg.OTel.Enabled {
		sinks = append(sinks, observeotel.NewSink(otel.GetTracerProvider()))
	}
	sink := observe.NewMultiSink(sinks...)

	handler := resilience.NewHandler(breakers, resilience.NewCatalog(), resilience.NewHistory(0), sink)

	orch, err := agents.NewOrchestrator(agents.Deps{
		Sessions: pipeline.NewSessionStore(docs, cache),
		Handler:  handler,
		Text:     text,
		Images:   images,
		Videos:   videos,
		Uploads:  uploads,
		Observer: sink,
		Budget: pipeline.Budget{
			Total:           cfg.Budget.Total,
			PerOperationCap: cfg.Budget.PerOperationCap,
		},
		Costs: agents.OperationCosts{
			Vision:  cfg.Costs.Vision,
			Image:   cfg.Costs.Image,
			Video:   cfg.Costs.Video,
			Storage: cfg.Costs.Storage,
		},
	})
	if err != nil {
		return err
	}

	server := api.NewServer(orch, api.Config{Addr: cfg.Addr, Stream: stream})
	log.Printf("listening on %s (models: %s / %s / %s)", cfg.Addr, cfg.Models.Gemini, cfg.Models.Imagen, cfg.Models.Veo)
	return server.ListenAndServe(ctx)
}
