package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/openbusio/backplane/internal/audit"
	"github.com/openbusio/backplane/internal/backplane"
	"github.com/openbusio/backplane/internal/config"
	"github.com/openbusio/backplane/internal/handlers/api"
	"github.com/openbusio/backplane/internal/leader"
	"github.com/openbusio/backplane/internal/metrics"
	"github.com/openbusio/backplane/internal/middlewares"
	"github.com/openbusio/backplane/internal/oauth2"
	"github.com/openbusio/backplane/internal/poll"
	"github.com/openbusio/backplane/internal/registry"
	"github.com/openbusio/backplane/internal/store"
	"github.com/openbusio/backplane/internal/worker"
	"github.com/openbusio/backplane/model"
	"github.com/openbusio/backplane/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "backplane - multi-tenant publish/subscribe message server"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func setupAPIRoutes(
	router fiber.Router,
	cfg *config.Config,
	tokenService *oauth2.TokenService,
	grantService *oauth2.GrantService,
	messages *backplane.MessageDAO,
	channels *backplane.ChannelDAO,
	hub *poll.Hub,
	buses registry.BusRepository,
	clients registry.ClientRepository,
	owners registry.OwnerRepository) {

	// handlers
	var (
		tokenHandler     = api.NewTokenHandler(tokenService, cfg.Debug)
		messagesHandler  = api.NewMessagesHandler(tokenService, messages, channels, hub, cfg.BaseURL, cfg.Debug)
		grantHandler     = api.NewGrantHandler(grantService, cfg.Debug)
		provisionHandler = api.NewProvisionHandler(cfg.MasterKey, buses, clients, owners, grantService, cfg.Debug)
	)

	// routes
	v2 := router.Group("/v2")
	v2.Post("/token", tokenHandler.PostToken)
	v2.Get("/messages", messagesHandler.GetMessages)
	v2.Get("/message/:id", messagesHandler.GetMessage)
	v2.Post("/bus/:bus/channel/:channel", messagesHandler.PostMessage)
	v2.Post("/grants", grantHandler.PostGrant)
	v2.Delete("/grants", grantHandler.DeleteGrantBuses)

	provision := v2.Group("/provision", provisionHandler.RequireAdmin)
	provision.Post("/bus", provisionHandler.PostBus)
	provision.Delete("/bus/:name", provisionHandler.DeleteBus)
	provision.Post("/client", provisionHandler.PostClient)
	provision.Delete("/client/:client_id", provisionHandler.DeleteClient)
	provision.Post("/owner", provisionHandler.PostOwner)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)
	audit.Initialize(audit.NewAuditEventRepository(db))
	redisStorage := mustInitRedisStorage(cfg.Redis)
	rdb := redisStorage.Conn()
	messageStorage := store.NewRedisStorage(rdb)

	// repositories
	var (
		busRepo    = registry.NewBusRepository(db)
		clientRepo = registry.NewClientRepository(db)
		ownerRepo  = registry.NewOwnerRepository(db)
	)

	// message store access
	var (
		messageDAO = backplane.NewMessageDAO(messageStorage)
		channelDAO = backplane.NewChannelDAO(messageStorage)
		tokenDAO   = backplane.NewTokenDAO(messageStorage)
		grantDAO   = backplane.NewGrantDAO(messageStorage, tokenDAO)
	)

	// services
	var (
		tokenService = oauth2.NewTokenService(cfg.MasterKey, channelDAO, tokenDAO, grantDAO, busRepo, clientRepo)
		grantService = oauth2.NewGrantService(grantDAO, tokenService, busRepo, clientRepo, ownerRepo)
	)

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	metrics.RegisterQueueDepth(func() float64 {
		n, err := messageDAO.QueueLength(runCtx)
		if err != nil {
			return -1
		}
		return float64(n)
	})

	hub := poll.NewHub(messageStorage, backplane.AlertsTopic)
	go hub.Run(runCtx)

	cleaner := worker.NewCleaner(messageDAO, params.CleanupInterval)
	go cleaner.Run(runCtx)

	if !cfg.Worker.Disable {
		elector := leader.NewLeaseElector(rdb, leader.LeaseConfig{
			Key:         cfg.Worker.LeaderKey,
			LeaseTTL:    cfg.Worker.LeaseTTL,
			RenewPeriod: params.LeaderRenewPeriod,
			RetryAfter:  params.LeaderRetryBackoff,
		})
		processor := worker.NewProcessor(messageStorage, busRepo)
		supervisor := worker.NewSupervisor(elector, processor)
		go elector.Run(runCtx)
		go supervisor.Run(runCtx)
	}

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	setupAPIRoutes(router, cfg, tokenService, grantService, messageDAO, channelDAO, hub,
		busRepo, clientRepo, ownerRepo)

	go startHealthCheckServer(params.HealthCheckServerAddr, rdb, db)
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
