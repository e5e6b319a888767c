package app

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"chargehub/internal/cache"
	"chargehub/internal/config"
	"chargehub/internal/handlers"
	httpserver "chargehub/internal/http"
	httphandlers "chargehub/internal/http/handlers"
	"chargehub/internal/http/middleware"
	"chargehub/internal/meter"
	"chargehub/internal/ocpp"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/service"
	"chargehub/internal/status"
	"chargehub/internal/storage"
	"chargehub/internal/ws"
	libdb "chargehub/libs/db"
	libredis "chargehub/libs/redis"
)

// App wires all dependencies for the charging backend.
type App struct {
	httpServer *httpserver.Server
	db         *sql.DB
	manager    *ws.Manager
	logger     *zap.Logger
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgres(cfg.Database.DSN, libdb.PoolConfig{})
	if err != nil {
		return nil, err
	}

	store := storage.NewPostgresStore(sqlDB)
	ingestor := meter.NewIngestor(store, logger)

	var activeStore *cache.Store
	if cfg.Redis.Addr != "" {
		redisClient, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		activeStore = cache.NewStore(redisClient, 0)
	} else {
		logger.Warn("redis not configured, active session cache disabled")
	}

	chargeService := service.NewChargeService(store, ingestor, activeStore, logger)
	statusEngine := status.NewEngine(store)

	router := ocpp.NewRouter()
	router.Register(protocol.ActionBootNotification, handlers.NewBootNotificationHandler(cfg.OCPP.HeartbeatInterval, logger))
	router.Register(protocol.ActionStartTransaction, handlers.NewStartTransactionHandler(chargeService, logger))
	router.Register(protocol.ActionMeterValues, handlers.NewMeterValuesHandler(chargeService, logger))
	router.Register(protocol.ActionStopTransaction, handlers.NewStopTransactionHandler(chargeService, logger))
	if err := router.Validate(protocol.Actions()); err != nil {
		sqlDB.Close()
		return nil, err
	}

	processor := ocpp.NewProcessor(router, logger)
	manager := ws.NewManager(cfg.OCPP.PingInterval)
	wsServer := ws.NewServer(manager, processor, cfg.OCPP.CallTimeout, cfg.OCPP.WriteTimeout, logger)

	mux := httpserver.NewRouter(httpserver.Routes{
		CurrentStatus: httphandlers.NewCurrentStatusHandler(statusEngine, logger),
		Sessions:      httphandlers.NewSessionsHandler(statusEngine, logger),
		Readings:      httphandlers.NewReadingsHandler(statusEngine, logger),
		ActiveSession: httphandlers.NewActiveSessionHandler(chargeService, logger),
		Health:        httphandlers.NewHealthHandler(),
		ChargePointWS: wsServer.HandleWS,
	}, middleware.BearerAuth(cfg.Auth.JWTSecret))

	return &App{
		httpServer: httpserver.NewServer(cfg.HTTPAddress(), mux, logger),
		db:         sqlDB,
		manager:    manager,
		logger:     logger,
	}, nil
}

// Run starts the connection manager and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	go a.manager.Start(ctx)
	return a.httpServer.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
