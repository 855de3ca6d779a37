package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"golang.org/x/sync/errgroup"

	"github.com/nanostudio/nanostudio-services-uploads/internal/config"
	"github.com/nanostudio/nanostudio-services-uploads/internal/health"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
)

type App struct {
	Engine     *gin.Engine
	HTTPServer *http.Server

	S3       *s3.Client
	DynamoDB *dynamodb.Client
	Redis    *redis.Client
	Sqs      *sqs.Client

	Config    config.Config
	AwsConfig aws.Config

	Services       *Services
	TracerProvider *sdktrace.TracerProvider
	Logger         logging.Logger

	ready     atomic.Bool
	runCtx    context.Context
	runCancel context.CancelFunc
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.AWSConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	awsCfg, err := initAWS(*cfg.AWSConfig)
	if err != nil {
		return nil, err
	}

	appLogger := logging.NewSlogLogger(logging.CreateAppLogger(cfg.Env))

	app := &App{
		S3:       s3.NewFromConfig(awsCfg),
		DynamoDB: dynamodb.NewFromConfig(awsCfg),
		Redis:    initRedis(*cfg.RedisConfig),
		Sqs:      sqs.NewFromConfig(awsCfg),

		Config:    cfg,
		AwsConfig: awsCfg,
		Logger:    appLogger,
	}
	app.runCtx, app.runCancel = context.WithCancel(context.Background())

	if app.Config.Tracing {
		tp, err := initTracer(context.Background(), "uploads", cfg.TracingAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		appLogger.Info("tracing in progress", "addr", cfg.TracingAddr)
		app.TracerProvider = tp
	}

	app.Services = BuildServices(app)

	return app, nil
}

func (a *App) Run() error {
	if a.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.Engine = gin.New()
	a.Engine.Use(gin.Recovery())
	if a.Config.Tracing {
		a.Engine.Use(otelgin.Middleware("uploads"))
	}

	a.Engine.GET("/healthz", a.handleHealthz)
	a.Services.HTTPHandler.Register(a.Engine)

	a.HTTPServer = &http.Server{
		Addr:    a.Config.ServiceConfig.HTTPAddr,
		Handler: a.Engine,
	}

	a.Services.Receiver.Start()

	g, ctx := errgroup.WithContext(a.runCtx)

	g.Go(func() error {
		a.Logger.Info("http server started", "addr", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.readinessLoop(ctx)
		return nil
	})

	g.Go(func() error {
		a.sweepLoop(ctx)
		return nil
	})

	return g.Wait()
}

// readinessLoop keeps /healthz honest: all checks must pass within their
// window or the process reports not-serving. Starts pessimistic.
func (a *App) readinessLoop(ctx context.Context) {
	checks := []health.ReadinessCheck{
		a.Services.Stores.files,
		a.Services.Stores.sessions,
		a.Services.Stores.chunks,
		a.Services.BlobStorage,
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ready := true

			for _, c := range checks {
				cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
				err := c.IsReady(cctx)
				cancel()

				if err != nil {
					a.Logger.Warn("readiness check failed", "check", c.Name(), "error", err)
					ready = false
					break
				}
			}

			a.ready.Store(ready)
		}
	}
}

// sweepLoop evicts expired sessions and chunk buffers so abandoned uploads
// cannot grow process memory without bound.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.Config.UploadConfig.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := a.Services.Stores.sessions.Sweep(ctx)
			chunks := a.Services.Stores.chunks.Sweep(ctx)
			if sessions > 0 || chunks > 0 {
				a.Logger.Info("evicted expired upload state", "sessions", sessions, "chunk_uploads", chunks)
			}
		}
	}
}

func (a *App) handleHealthz(c *gin.Context) {
	if !a.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_serving"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "serving"})
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.HOST == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.HOST,
		Password: "",
		DB:       0,
	})
}

func initTracer(ctx context.Context, serviceName string, addr string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(addr),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp, nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("starting graceful shutdown")

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("http server shutdown error", "error", err)
		}
	}

	a.runCancel()

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			a.Logger.Error("services shutdown error", "error", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			a.Logger.Error("tracer shutdown error", "error", err)
		}
	}

	a.Logger.Info("graceful shutdown complete")
	return nil
}
