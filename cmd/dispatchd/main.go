package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqttclient "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/wastehaul/dispatchd/internal/analytics"
	"github.com/wastehaul/dispatchd/internal/api"
	"github.com/wastehaul/dispatchd/internal/config"
	"github.com/wastehaul/dispatchd/internal/dispatch"
	"github.com/wastehaul/dispatchd/internal/executor"
	"github.com/wastehaul/dispatchd/internal/metrics"
	"github.com/wastehaul/dispatchd/internal/monitor"
	"github.com/wastehaul/dispatchd/internal/notify"
	"github.com/wastehaul/dispatchd/internal/registry"
	"github.com/wastehaul/dispatchd/internal/store/file"
	"github.com/wastehaul/dispatchd/internal/store/postgres"
	redisstore "github.com/wastehaul/dispatchd/internal/store/redis"
	"github.com/wastehaul/dispatchd/internal/transport/channel"
	"github.com/wastehaul/dispatchd/internal/transport/mqtt"
	"github.com/wastehaul/dispatchd/internal/transport/rabbitmq"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`dispatchd - fleet dispatch and geofence engine

Usage:
  dispatchd <command>

Commands:
  serve      Start the geofence monitor, trigger executor and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  GEOFENCE_STORE            Geofence backend: file, postgres or redis (default: "file")
  GEOFENCE_FILE             Path for the file backend (default: "data/geofences.json")
  DATABASE_URL              PostgreSQL connection string (postgres backend)
  REDIS_ADDR                Redis address (redis backend and event analytics)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  TICK_INTERVAL             Monitor evaluation interval (default: "5s")
  DEFAULT_DWELL             Default dwell threshold (default: "60s")
  EVENTBUS_BUFFER_SIZE      Per-subscriber event buffer (default: "100")

  AVG_SPEED_KMH             Assumed travel speed for duration estimates (default: "40")
  SERVICE_TIME              Fixed on-site service time per stop (default: "30m")

  MQTT_BROKER               MQTT broker URL for vehicle positions (optional)
  MQTT_CLIENT_ID            MQTT client id (default: "dispatchd-monitor")
  MQTT_TOPIC                Position topic (default: "/fleet/vehicle/+/location")
  RABBITMQ_URL              AMQP URL for event publishing (optional)

  ORDER_STATUS_URL          Webhook for order status updates (optional)
  NOTIFY_URL                Webhook for notifications (optional)
  PHOTO_REQUEST_URL         Webhook for photo capture requests (optional)
  WEBHOOK_SECRET            HMAC secret for outgoing webhooks
  WEBHOOK_TIMEOUT           Webhook request timeout (default: "30s")
  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before opening (default: "5", 0 disables)
  CIRCUIT_BREAKER_COOLDOWN  Open-state cooldown (default: "2m")

  ANALYTICS_WINDOW          Event count bucket size (default: "1m")
  ANALYTICS_RETENTION       Event count TTL (default: "24h")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  EXECUTOR_DRAIN_TIMEOUT    Executor event drain timeout (default: "30s")`)
}

// redisPinger adapts a go-redis client to the api.HealthChecker interface.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Redis client is shared by the redis store backend and analytics.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	// Select the geofence store backend.
	var (
		store  registry.Store
		health api.HealthChecker
	)
	switch cfg.GeofenceStore {
	case "file":
		store = file.New(cfg.GeofenceFile)
		log.Printf("dispatchd: file store (path=%s)", cfg.GeofenceFile)

	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}

		pg := postgres.New(db)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
			return exitRuntimeError
		}
		store = pg
		health = db
		log.Println("dispatchd: postgres store")

	case "redis":
		store = redisstore.New(redisClient)
		health = redisPinger{client: redisClient}
		log.Printf("dispatchd: redis store (addr=%s)", cfg.RedisAddr)
	}

	reg, err := registry.New(context.Background(), store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load geofences: %v\n", err)
		return exitRuntimeError
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("dispatchd: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("dispatchd: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("dispatchd: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("dispatchd: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewBus(cfg.EventBusBufferSize, busOpts...)

	// Vehicle positions come from MQTT when a broker is configured; the
	// POST /position endpoint feeds the same source either way.
	positions := monitor.NewLatestSource()

	var positionSub *mqtt.PositionSubscriber
	if cfg.MQTTBroker != "" {
		opts := mqttclient.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientID).
			SetAutoReconnect(true)
		client := mqttclient.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to mqtt broker: %v\n", token.Error())
			return exitRuntimeError
		}
		defer client.Disconnect(250)

		positionSub = mqtt.NewPositionSubscriber(client, cfg.MQTTTopic, positions)
		if err := positionSub.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to subscribe to mqtt topic: %v\n", err)
			return exitRuntimeError
		}
		log.Printf("dispatchd: mqtt positions enabled (broker=%s, topic=%s)", cfg.MQTTBroker, cfg.MQTTTopic)
	} else {
		log.Println("dispatchd: MQTT_BROKER not set; positions via HTTP only")
	}

	mon := monitor.New(
		monitor.Config{
			TickInterval: cfg.TickInterval,
			DefaultDwell: cfg.DefaultDwell,
		},
		reg,
		positions,
		bus,
	)
	if metricsSink != nil {
		mon = mon.WithMetrics(metricsSink)
	}

	// Trigger side effects go to webhooks when configured, otherwise to the
	// log-only fallbacks.
	var (
		statusUpdater  executor.StatusUpdater  = notify.LogStatusUpdater{}
		notifier       executor.Notifier       = notify.LogNotifier{}
		photoRequester executor.PhotoRequester = notify.LogPhotoRequester{}
	)
	if cfg.OrderStatusURL != "" || cfg.NotifyURL != "" || cfg.PhotoRequestURL != "" {
		webhookClient := notify.NewClient(cfg.WebhookSecret, cfg.WebhookTimeout)
		if cfg.CircuitBreakerThreshold > 0 {
			webhookClient = webhookClient.WithBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		}
		if metricsSink != nil {
			webhookClient = webhookClient.WithMetrics(metricsSink)
		}

		if cfg.OrderStatusURL != "" {
			statusUpdater = notify.NewOrderStatusWebhook(webhookClient, cfg.OrderStatusURL)
			log.Printf("dispatchd: order status webhook enabled (url=%s)", cfg.OrderStatusURL)
		}
		if cfg.NotifyURL != "" {
			notifier = notify.NewWebhookNotifier(webhookClient, cfg.NotifyURL)
			log.Printf("dispatchd: notification webhook enabled (url=%s)", cfg.NotifyURL)
		}
		if cfg.PhotoRequestURL != "" {
			photoRequester = notify.NewPhotoWebhook(webhookClient, cfg.PhotoRequestURL)
			log.Printf("dispatchd: photo request webhook enabled (url=%s)", cfg.PhotoRequestURL)
		}
	} else {
		log.Println("dispatchd: no webhook URLs set; trigger actions log only")
	}

	exec := executor.New(reg, statusUpdater, notifier, photoRequester).
		WithDrainTimeout(cfg.ExecutorDrainTimeout)
	if metricsSink != nil {
		exec = exec.WithMetrics(metricsSink)
	}

	// Wire the scorer with configured duration parameters.
	scorerCfg := dispatch.DefaultScorerConfig()
	scorerCfg.AvgSpeedKmh = cfg.AvgSpeedKmh
	scorerCfg.ServiceTime = cfg.ServiceTime
	scorer := dispatch.NewScorer(scorerCfg)

	apiHandler := api.NewHandler(reg, scorer).WithPositionSink(positions)
	if health != nil {
		apiHandler = apiHandler.WithHealthChecker(health)
	}
	if metricsSink != nil {
		apiHandler = apiHandler.WithMetrics(metricsSink)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("dispatchd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("dispatchd: http server error: %v", err)
		}
	}()

	// Use separate contexts for the monitor, executor and publishers to
	// enable ordered shutdown.
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()
	executorCtx, cancelExecutor := context.WithCancel(context.Background())
	defer cancelExecutor()
	publishCtx, cancelPublish := context.WithCancel(context.Background())
	defer cancelPublish()

	var monitorWg sync.WaitGroup
	var executorWg sync.WaitGroup
	var publishWg sync.WaitGroup

	monitorWg.Add(1)
	go func() {
		defer monitorWg.Done()
		if err := mon.Run(monitorCtx); err != nil && err != context.Canceled {
			log.Printf("dispatchd: monitor error: %v", err)
		}
	}()

	executorSub := bus.Subscribe()
	executorWg.Add(1)
	go func() {
		defer executorWg.Done()
		exec.Run(executorCtx, executorSub.Events())
	}()

	// Publish events to RabbitMQ if configured
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to rabbitmq: %v\n", err)
			return exitRuntimeError
		}
		defer conn.Close()

		publisher, err := rabbitmq.NewEventPublisher(conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to set up rabbitmq publisher: %v\n", err)
			return exitRuntimeError
		}

		publishSub := bus.Subscribe()
		publishWg.Add(1)
		go func() {
			defer publishWg.Done()
			defer publishSub.Close()
			publisher.Run(publishCtx, publishSub.Events())
		}()
		log.Printf("dispatchd: rabbitmq publishing enabled")
	} else {
		log.Println("dispatchd: RABBITMQ_URL not set; event publishing disabled")
	}

	// Record event analytics in Redis if available
	if redisClient != nil {
		sink := analytics.NewRedisSink(redisClient, analytics.Config{
			Window:    cfg.AnalyticsWindow,
			Retention: cfg.AnalyticsRetention,
		})
		analyticsSub := bus.Subscribe()
		publishWg.Add(1)
		go func() {
			defer publishWg.Done()
			defer analyticsSub.Close()
			sink.Run(publishCtx, analyticsSub.Events())
		}()
		log.Printf("dispatchd: event analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("dispatchd: REDIS_ADDR not set; event analytics disabled")
	}

	log.Printf("dispatchd: started (tick=%s, dwell=%s, http=%s)", cfg.TickInterval, cfg.DefaultDwell, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("dispatchd: received signal %v, shutting down", received)

	// Phase 1: Stop the position subscriber and monitor (no new events emitted)
	if positionSub != nil {
		positionSub.Stop()
	}
	log.Println("dispatchd: stopping monitor...")
	cancelMonitor()
	monitorWg.Wait()
	log.Println("dispatchd: monitor stopped")

	// Phase 2: Stop the executor (will drain buffered events before returning)
	log.Println("dispatchd: stopping executor (draining events)...")
	cancelExecutor()
	executorWg.Wait()
	executorSub.Close()
	log.Println("dispatchd: executor stopped")

	// Phase 3: Stop publishers
	cancelPublish()
	publishWg.Wait()

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("dispatchd: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("dispatchd: http server shutdown error: %v", err)
	}
	log.Println("dispatchd: http server stopped")

	// Phase 5: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("dispatchd: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("dispatchd: metrics server shutdown error: %v", err)
		}
		log.Println("dispatchd: metrics server stopped")
	}

	log.Println("dispatchd: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("dispatchd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
