package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lessonjudge/internal/common/cache"
	commonmw "lessonjudge/internal/common/http/middleware"
	"lessonjudge/internal/common/mq"
	"lessonjudge/internal/judge/controller"
	"lessonjudge/internal/judge/repository"
	"lessonjudge/internal/judge/sandbox/observer"
	"lessonjudge/internal/judge/service"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"
	"lessonjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath {
		path = ""
	}
	appCfg, err := loadAppConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := service.NewPipeline(appCfg.Pipeline, observer.NewPrometheusRecorder(reg))
	if err != nil {
		return fmt.Errorf("init evaluation pipeline failed: %w", err)
	}

	var redisCache *cache.RedisCache
	if appCfg.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
	}

	svcCfg := service.Config{
		Judge:          pipeline.Worker,
		Validator:      pipeline.Validator,
		Limits:         appCfg.Limits.toResourceLimit(),
		RunTimeout:     appCfg.Worker.Timeout,
		StatusTimeout:  appCfg.Status.Timeout,
		QueueWait:      appCfg.Worker.QueueWait,
		MaxConcurrency: appCfg.Worker.PoolSize,
	}
	if appCfg.Status.Enabled {
		statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL)
		pipeline.Worker.SetStatusReporter(statusRepo)
		svcCfg.StatusRepo = statusRepo
	}
	if appCfg.Verdict.Enabled {
		producer, err := mq.NewKafkaProducer(appCfg.Verdict.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		svcCfg.Publisher = repository.NewMQVerdictPublisher(producer, appCfg.Verdict.Topic)
	}
	judgeSvc, err := service.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	var limiter *commonmw.RateLimiter
	if appCfg.RateLimit.Enabled {
		limiter = commonmw.NewRateLimiter(redisCache, appCfg.RateLimit.Run.Window, appCfg.RateLimit.RedisTimeout)
	}

	httpServer := buildHTTPServer(appCfg, judgeSvc, limiter, reg, redisCache)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("sandbox", string(appCfg.Pipeline.Sandbox.Mode)),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(
	appCfg *AppConfig,
	judgeSvc *service.Service,
	limiter *commonmw.RateLimiter,
	reg *prometheus.Registry,
	redisCache *cache.RedisCache,
) *http.Server {
	router := newRouter(appCfg, judgeSvc, limiter, reg, func(ctx context.Context) error {
		if redisCache == nil {
			return nil
		}
		if err := redisCache.Ping(ctx); err != nil {
			return appErr.Wrapf(err, appErr.ServiceUnavailable, "redis unavailable")
		}
		return nil
	})
	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

func newRouter(
	appCfg *AppConfig,
	judgeSvc *service.Service,
	limiter *commonmw.RateLimiter,
	reg *prometheus.Registry,
	ping func(ctx context.Context) error,
) *gin.Engine {
	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.Recovery())
	router.Use(commonmw.RequestLogger())
	router.Use(commonmw.NewMetricsBuilder(reg).Build())
	router.Use(commonmw.CORSMiddleware(appCfg.CORS))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	router.GET("/healthz", func(c *gin.Context) {
		if err := ping(c.Request.Context()); err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	})

	judgeController := controller.NewJudgeController(judgeSvc)
	api := router.Group("/api/v1/judge")
	api.POST("/run", commonmw.RateLimitMiddleware(limiter, "run", appCfg.RateLimit.Run), judgeController.Run)
	api.POST("/validate", commonmw.RateLimitMiddleware(limiter, "validate", appCfg.RateLimit.Validate), judgeController.Validate)
	api.GET("/status/:runId", judgeController.GetStatus)
	return router
}
