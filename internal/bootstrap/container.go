package bootstrap

import (
	"context"
	"log"
	"os"
	"time"

	"paintroom-be/internal/config"
	"paintroom-be/internal/controller"
	"paintroom-be/internal/handler"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/implementation"
	"paintroom-be/internal/repository/memory"
	"paintroom-be/internal/repository/unitofwork"
	"paintroom-be/internal/service"
	"paintroom-be/internal/storage"
	"paintroom-be/internal/websocket"
	"paintroom-be/internal/worker"
	"paintroom-be/pkg/events"
	"paintroom-be/pkg/humancheck"
	pktNats "paintroom-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	roomChangesTopic = "room_changes"
	roomListTTL      = 30 * time.Second
)

type Container struct {
	// Controllers
	RoomController controller.IRoomController

	// Local blob driver only
	StorageHandler *handler.StorageHandler
	LocalStore     *storage.LocalStore

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	LobbyService    service.ILobbyService
	ExpiryReaper    *worker.ExpiryReaper
	WebSocketHub    *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	rules := service.NewSessionRules(cfg.Session)

	instanceID := cfg.App.InstanceID
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = host + "-" + uuid.NewString()[:8]
	}

	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	// Subscribers ack one message at a time, which keeps per-room order.
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	// 3. Infrastructure
	// NATS
	var eventPublisher events.Publisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPublisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	var eventSubscriber service.EventSubscriber
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		eventSubscriber = natsSub
		c.closers = append(c.closers, natsSub.Close)
	}

	// Redis, with in-memory fallbacks for a single instance
	var (
		lockRepo     contract.ArchiveLockRepository
		presenceRepo contract.PresenceRepository
		rdb          *redis.Client
	)
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Using in-memory locks and presence", err)
		client.Close()
		lockRepo = memory.NewArchiveLockRepository()
		presenceRepo = memory.NewPresenceRepository(cfg.Session.PresenceHeartbeatTTL)
	} else {
		rdb = client
		lockRepo = implementation.NewArchiveLockRepositoryRedis(rdb)
		presenceRepo = implementation.NewPresenceRepositoryRedis(rdb, cfg.Session.PresenceHeartbeatTTL)
		c.closers = append(c.closers, func() { rdb.Close() })
	}

	// Blob store
	var blobs storage.BlobStore
	switch cfg.Storage.Driver {
	case "s3":
		s3Store, err := storage.NewS3Store(context.Background(), storage.S3Options{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			PublicBaseURL:   cfg.Storage.S3.PublicBaseURL,
		})
		if err != nil {
			log.Fatalf("[FATAL] Failed to initialize S3 storage: %v", err)
		}
		blobs = s3Store
		log.Printf("[INFO] Using Blob Storage: S3 (%s)", cfg.Storage.S3.Bucket)
	default:
		c.LocalStore = storage.NewLocalStore(cfg.Storage.LocalRoot, cfg.Storage.PublicBaseURL, cfg.Storage.SigningSecret)
		c.StorageHandler = handler.NewStorageHandler(c.LocalStore, sysLogger)
		blobs = c.LocalStore
		log.Printf("[INFO] Using Blob Storage: LOCAL (%s)", cfg.Storage.LocalRoot)
	}

	// Human check
	var verifier humancheck.Verifier
	if cfg.HumanCheck.Provider == "static" {
		verifier = humancheck.NewStaticVerifier(cfg.HumanCheck.StaticToken)
		log.Printf("[INFO] Using Human Check: STATIC")
	} else {
		verifier = humancheck.NewTurnstileVerifier(cfg.HumanCheck.SecretKey, cfg.HumanCheck.VerifyURL)
		log.Printf("[INFO] Using Human Check: TURNSTILE")
	}

	// 4. Services
	publisherService := service.NewPublisherService(roomChangesTopic, pubSub)
	strokeService := service.NewStrokeService(uowFactory, publisherService, sysLogger)
	sessionService := service.NewSessionService(uowFactory, lockRepo, blobs, verifier, strokeService, publisherService, eventPublisher, rules, sysLogger)
	archiveService := service.NewArchiveService(uowFactory, lockRepo, blobs, verifier, rules, sysLogger)
	thumbnailService := service.NewThumbnailService(uowFactory, presenceRepo, blobs, publisherService, eventPublisher, rules, sysLogger)
	c.LobbyService = service.NewLobbyService(uowFactory, presenceRepo, eventSubscriber, rules, roomListTTL, sysLogger)

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogPath)
	c.WebSocketHub = websocket.NewHub(rdb, instanceID, presenceRepo, strokeService, wsLogger)

	c.ConsumerService = service.NewConsumerService(pubSub, roomChangesTopic, sysLogger, c.WebSocketHub, c.LobbyService)
	c.ExpiryReaper = worker.NewExpiryReaper(uowFactory, strokeService, archiveService, sessionService, rules, cfg.Session.ReaperInterval, cfg.Session.ReaperGrace, sysLogger)

	// 5. Controllers
	socketHandler := handler.NewRoomSocketHandler(sessionService, c.WebSocketHub, sysLogger)
	c.RoomController = controller.NewRoomController(
		c.LobbyService,
		sessionService,
		strokeService,
		archiveService,
		thumbnailService,
		socketHandler.ServeWs,
	)

	return c
}

// Close releases broker connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.Logger.Sync()
}
