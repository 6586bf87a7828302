package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/auth"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/cache"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/clients"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/db"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/events"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/handlers"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/middleware"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/repository"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/router"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/services"
)

// ServiceContainer owns every long-lived component of the server
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database, nil without a DSN
	DB *gorm.DB

	// Repositories
	Settlements repository.SettlementRepository

	// Core
	Dispatcher *dispatcher.Dispatcher
	Roles      *dispatcher.RoleRegistry
	Fees       *dispatcher.FeeSchedule

	// Monitoring
	Monitor *services.CustodyMonitor

	// Events
	Hub        *events.Hub
	NATSClient *clients.NATSClient
	Sink       *events.FanOut

	// Auth
	Tokens *auth.TokenIssuer
	Nonces cache.NonceStore
	Redis  *redis.Client

	collaborators *onChain
	cancelWatch   context.CancelFunc
}

// NewServiceContainer builds the dispatcher and its stores from cfg. cfg must
// already be validated.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	c := &ServiceContainer{Config: cfg, Logger: logger}
	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *ServiceContainer) initialize(ctx context.Context) error {
	cfg := c.Config
	logger := c.Logger

	// 1. Collaborators for the selected mode
	var err error
	switch cfg.Dispatcher.Mode {
	case config.ModeEVM:
		c.collaborators, err = newEVMCollaborators(ctx, cfg.Chain)
	default:
		c.collaborators, err = newSimulatedCollaborators(cfg.Simulated, cfg.Dispatcher, logger)
	}
	if err != nil {
		return err
	}

	// 2. Persistence
	var (
		roleStore  dispatcher.RoleStore
		ruleStore  dispatcher.RuleStore
		tokenStore dispatcher.TokenStore
	)
	if cfg.Database.DSN != "" {
		c.DB, err = db.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		roleStore = repository.NewRoleRepository(c.DB)
		ruleStore = repository.NewFeeRuleRepository(c.DB)
		tokenStore = repository.NewFastTokenRepository(c.DB)
		c.Settlements = repository.NewSettlementRepository(c.DB)

		watchCtx, cancel := context.WithCancel(context.Background())
		c.cancelWatch = cancel
		go db.WatchPool(watchCtx, c.DB, 30*time.Second)
	} else {
		logger.Warn("⚠️ No database configured, state is kept in memory only")
		c.Settlements = repository.NewMemorySettlementRepository(0)
	}

	// 3. Roles and fees
	c.Roles, err = dispatcher.NewRoleRegistry(ctx, cfg.RoleState(), roleStore)
	if err != nil {
		return err
	}
	c.Fees, err = dispatcher.NewFeeSchedule(ctx, c.Roles, ruleStore, cfg.Dispatcher.MaxPercFeeBips)
	if err != nil {
		return err
	}
	if err := seedFeeRules(ctx, c.Fees, c.Roles.State().FeeUpdater, cfg.Dispatcher.FeeRules, logger); err != nil {
		return err
	}

	// 4. Settlement fan-out
	c.Hub = events.NewHub()
	targets := []events.Target{{Name: "store", Sink: c.Settlements}}
	if cfg.NATS.URL != "" {
		c.NATSClient, err = clients.NewNATSClient(clients.NATSOptions{
			URL:             cfg.NATS.URL,
			Timeout:         time.Duration(cfg.NATS.Timeout) * time.Second,
			ReconnectWait:   time.Duration(cfg.NATS.ReconnectWait) * time.Second,
			MaxReconnects:   cfg.NATS.MaxReconnects,
			EnableJetStream: cfg.NATS.EnableJetStream,
			Stream:          cfg.NATS.Stream,
			SubjectPrefix:   cfg.NATS.SubjectPrefix,
		})
		if err != nil {
			// Settlements are still stored and streamed without NATS.
			logger.WithError(err).Warn("⚠️ NATS unavailable, settlements will not be published")
		} else {
			targets = append(targets, events.Target{Name: "nats", Sink: c.NATSClient})
		}
	}
	targets = append(targets, events.Target{Name: "websocket", Sink: c.Hub})
	c.Sink = events.NewFanOut(targets...)

	// 5. Dispatcher
	policy, err := dispatcher.ParseCustodyPolicy(cfg.Dispatcher.CustodyPolicy)
	if err != nil {
		return err
	}
	oc := c.collaborators
	c.Dispatcher, err = dispatcher.New(ctx, dispatcher.Options{
		LocalDomain:        cfg.Dispatcher.LocalDomain,
		ForwardingDomain:   cfg.Dispatcher.ForwardingDomain,
		BurnToken:          oc.burnToken,
		Custodian:          oc.custodian,
		Policy:             policy,
		FastTransferTokens: cfg.FastTokens(),
		Logger:             logger,
	}, dispatcher.Collaborators{
		Messenger:         oc.messenger,
		MetadataMessenger: oc.metadataMessenger,
		Asset:             oc.asset,
		Assets:            oc.assets,
		Fees:              c.Fees,
		Roles:             c.Roles,
		Sink:              c.Sink,
		Withdrawals:       c.Sink,
		Tokens:            tokenStore,
	})
	if err != nil {
		return err
	}

	var nativeBalance services.NativeBalance
	if oc.client != nil {
		nativeBalance = oc.client.BalanceAt
	}
	c.Monitor = services.NewCustodyMonitor(c.Dispatcher, nativeBalance, cfg.Chain.Network, time.Minute)
	c.Monitor.Start()

	// 6. Auth
	c.Tokens = auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	nonceTTL := time.Duration(cfg.Auth.NonceTTL) * time.Second
	if cfg.Redis.Host != "" {
		c.Redis = cache.NewRedisClient(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  time.Duration(cfg.Redis.Timeout) * time.Second,
		})
		c.Nonces = cache.NewRedisNonceStore(c.Redis, nonceTTL)
	} else {
		c.Nonces = cache.NewMemoryNonceStore(nonceTTL)
	}

	logger.WithFields(logrus.Fields{
		"mode":      cfg.Dispatcher.Mode,
		"custodian": oc.custodian.Hex(),
		"policy":    policy,
		"sinks":     c.Sink.Names(),
	}).Info("✅ Service container initialized")
	return nil
}

// seedFeeRules sets configured rules for domains the schedule does not have
// yet. Stored rules always win.
func seedFeeRules(ctx context.Context, fees *dispatcher.FeeSchedule, feeUpdater common.Address, rules []config.FeeRuleConfig, logger *logrus.Logger) error {
	for _, r := range rules {
		if fees.GetFee(r.Domain).Initialized {
			continue
		}
		var flat *big.Int
		if r.FlatFee != "" {
			v, ok := config.ParseAmount(r.FlatFee)
			if !ok {
				return fmt.Errorf("fee rule for domain %d: %w", r.Domain, dispatcher.ErrInvalidFlatFee)
			}
			flat = v
		}
		if err := fees.SetFee(ctx, feeUpdater, r.Domain, r.PercFeeBips, flat); err != nil {
			return fmt.Errorf("seed fee rule for domain %d: %w", r.Domain, err)
		}
		logger.Infof("📋 Seeded fee rule for domain %d: %d bips + %s", r.Domain, r.PercFeeBips, r.FlatFee)
	}
	return nil
}

// Handlers builds the HTTP handlers over the container's components.
func (c *ServiceContainer) Handlers() router.Handlers {
	return router.Handlers{
		Auth:      handlers.NewAuthHandler(c.Nonces, c.Tokens, c.Logger),
		Fees:      handlers.NewFeeHandler(c.Dispatcher),
		Roles:     handlers.NewRoleHandler(c.Roles),
		Transfers: handlers.NewTransferHandler(c.Dispatcher, c.Settlements, c.Logger),
		Custody:   handlers.NewCustodyHandler(c.Dispatcher, c.collaborators.asset, c.Settlements, c.Logger),
		Admin:     handlers.NewAdminHandler(c.Dispatcher, c.collaborators.factory, c.Logger),
		Stream:    handlers.NewStreamHandler(c.Hub, c.Logger),
		Health:    handlers.HealthHandler("cctp-evm-bridge", c.Config.Dispatcher.Mode, c.HealthChecks()...),
	}
}

// AuthMiddleware returns the middleware validating the container's tokens.
func (c *ServiceContainer) AuthMiddleware() *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(c.Logger, c.Tokens)
}

// HealthChecks lists probes for the configured dependencies only.
func (c *ServiceContainer) HealthChecks() []handlers.HealthCheck {
	var checks []handlers.HealthCheck
	if c.DB != nil {
		checks = append(checks, handlers.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if c.Redis != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}})
	}
	if c.NATSClient != nil {
		checks = append(checks, handlers.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !c.NATSClient.Healthy() {
				return errors.New("disconnected")
			}
			return nil
		}})
	}
	if client := c.collaborators.client; client != nil {
		custodian := c.collaborators.custodian
		checks = append(checks, handlers.HealthCheck{Name: "rpc", Check: func(ctx context.Context) error {
			_, err := client.BalanceAt(ctx, custodian, nil)
			return err
		}})
	}
	return checks
}

// Close releases connections. Safe on a partially initialized container.
func (c *ServiceContainer) Close() {
	if c.Monitor != nil {
		c.Monitor.Stop()
	}
	if c.cancelWatch != nil {
		c.cancelWatch()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close redis")
		}
	}
	if c.collaborators != nil && c.collaborators.client != nil {
		c.collaborators.client.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
