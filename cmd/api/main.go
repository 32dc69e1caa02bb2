package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"landuse-api/internal/buckets"
	"landuse-api/internal/classifier"
	"landuse-api/internal/middleware"
	"landuse-api/internal/model"
	"landuse-api/internal/routers"
	"landuse-api/internal/shared"
)

func main() {
	// Flags / ENV Variables
	listen := flag.String("listen", shared.DefaultListenAddr, "Listen address")
	modelPath := flag.String("model-path", "", "Path to the ONNX model artifact")
	labelsPath := flag.String("labels-path", "", "Path to the JSON label file")
	onnxLib := flag.String("onnx-lib", "", "Path to the onnxruntime shared library")
	inferTimeout := flag.Duration("infer-timeout", shared.DefaultInferTimeout, "Max time a request may wait on inference")
	redisAddr := flag.String("redis-addr", "", "Redis host:port for the result cache")
	dsn := flag.String("dsn", "", "MySQL DSN for classification stats")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	debug := flag.Bool("debug", false, "Debug enabled")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	if *modelPath == "" || *labelsPath == "" {
		panic("model-path and labels-path are required")
	}

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()

	// Stats DB init, optional
	var statsDB *sql.DB
	if *dsn != "" {
		statsDB, err = sql.Open("mysql", *dsn)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = statsDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
	}

	// Result cache, optional
	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if statsDB != nil {
			_ = statsDB.Close()
		}
	}()

	// Model startup is all or nothing; a dimension mismatch between the
	// artifact and the label file must abort here, never serve degraded.
	model.SetRuntimeLibrary(*onnxLib)
	svc, err := classifier.New(classifier.Config{
		ModelPath:    *modelPath,
		LabelsPath:   *labelsPath,
		InferTimeout: *inferTimeout,
		Redis:        redisClient,
		Log:          log,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to start classifier: %s", err))
	}
	defer svc.ShutDown()
	log.Infow("Classifier loaded", "model", *modelPath, "labels", svc.Labels())

	statsCache := buckets.NewStatsCache(log, statsDB)
	defer statsCache.Shutdown()

	e := echo.New()
	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}

			if apiKey != *metricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})
	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	// Register routes
	err = routers.RegisterClassifyRoutes(base, svc, statsCache, log)
	if err != nil {
		panic(err)
	}

	go func() {
		if err := e.Start(*listen); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}
}
