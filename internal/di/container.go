// internal/di/container.go
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botvac-bridge/internal/account"
	"botvac-bridge/internal/admin"
	"botvac-bridge/internal/api"
	"botvac-bridge/internal/command"
	"botvac-bridge/internal/config"
	"botvac-bridge/internal/database"
	"botvac-bridge/internal/messaging"
	"botvac-bridge/internal/metrics"
	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/session"
	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/utils"
	"botvac-bridge/internal/vendor"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Container 의존성 주입 컨테이너
type Container struct {
	Config *config.Config
	Vendor vendor.Vendor

	// Infra
	Store    registry.Store
	Recorder database.Recorder
	MQTT     messaging.Client

	// Business
	Pool       *session.Pool
	Dispatcher *command.Dispatcher

	closers []func()
}

// NewContainer 새로운 컨테이너 생성
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// 1. 기본 설정
	v, err := cfg.RelayVendor()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vendor: %v", err)
	}
	c.Vendor = v
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %v", err)
	}

	// 2. 인프라 서비스들 초기화
	if err := c.initInfraServices(cfg); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init infra services: %v", err)
	}

	// 3. 비즈니스 서비스들 초기화
	c.initBusinessServices(cfg)

	return c, nil
}

// initInfraServices 인프라 서비스들 초기화
func (c *Container) initInfraServices(cfg *config.Config) error {
	// Identity store
	if cfg.RedisEnabled {
		client, err := registry.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("redis init failed: %v", err)
		}
		c.Store = registry.NewRedisStore(client)
		c.closers = append(c.closers, func() { closeRedis(client) })
		utils.Logger.Infof("✅ Redis identity store at %s:%s", cfg.RedisHost, cfg.RedisPort)
	} else {
		c.Store = registry.NewMemoryStore()
		utils.Logger.Info("Using in-memory identity store")
	}

	// Audit log
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			return fmt.Errorf("database init failed: %v", err)
		}
		c.Recorder = database.NewGormRecorder(db)
		if sqlDB, err := db.DB(); err == nil {
			c.closers = append(c.closers, func() { _ = sqlDB.Close() })
		}
	} else {
		c.Recorder = database.NewMemoryRecorder()
		utils.Logger.Info("Using in-memory command log")
	}

	// MQTT
	client, err := messaging.NewMQTTClient(cfg)
	if err != nil {
		return fmt.Errorf("mqtt init failed: %v", err)
	}
	c.MQTT = client
	c.closers = append(c.closers, func() { client.Disconnect(250) })

	return nil
}

// initBusinessServices 비즈니스 서비스들 초기화
func (c *Container) initBusinessServices(cfg *config.Config) {
	c.Pool = session.NewPool(c.Store, session.NewFactory(c.Vendor, cfg.RelayTimeout), cfg.SessionTTL)
	c.Dispatcher = command.NewDispatcher(c.Pool, c.Recorder)
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		utils.Logger.Errorf("Failed to close redis: %v", err)
	}
}

// Seed 로봇 파일과 (계정 설정 시) 대시보드를 식별 정보 저장소에 적재
// 같은 시리얼이면 대시보드 항목이 우선
func (c *Container) Seed(ctx context.Context) error {
	if c.Config.RobotsFile != "" {
		n, err := SeedFromFile(ctx, c.Store, c.Config.RobotsFile)
		if err != nil {
			return err
		}
		utils.Logger.Infof("📄 Loaded %d robots from %s", n, c.Config.RobotsFile)
	}

	if c.Config.SyncAccount && c.Config.HasCredentials() {
		n, err := c.syncAccount(ctx)
		if err != nil {
			// 클라우드 장애로 브리지를 멈추지 않음, 파일이나 이전 동기화로 로봇을 알 수 있음
			utils.Logger.Errorf("❌ Account sync failed: %v", err)
			if errors.Is(err, account.ErrLogin) {
				return err
			}
			return nil
		}
		utils.Logger.Infof("☁️ Synced %d robots from the %s account", n, c.Vendor.Name)
	}
	return nil
}

// SeedFromFile path에 나열된 모든 로봇 저장
func SeedFromFile(ctx context.Context, store registry.Store, path string) (int, error) {
	ids, err := registry.LoadFile(path)
	if err != nil {
		return 0, err
	}
	if err := registry.SaveAll(ctx, store, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (c *Container) account(ctx context.Context) (*account.Account, error) {
	tlsConfig, err := c.Vendor.TLSConfig()
	if err != nil {
		return nil, err
	}
	s, err := account.Login(ctx, account.Credentials{
		Email:    c.Config.AccountEmail,
		Password: c.Config.AccountPassword,
		Token:    c.Config.AccountToken,
	}, c.Vendor, account.WithHTTP(transport.NewHTTPTransport(c.Config.RelayTimeout, tlsConfig)))
	if err != nil {
		return nil, err
	}
	return account.New(s), nil
}

func (c *Container) syncAccount(ctx context.Context) (int, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return 0, err
	}
	return acct.Sync(ctx, c.Store)
}

// RefreshPersistentMaps 계정의 평면도를 다시 읽어 알려진 로봇의 persistent-map 플래그 갱신
// 살아있는 세션도 함께 갱신, 저장소에 없는 로봇은 건너뜀. 갱신한 개수 반환
func (c *Container) RefreshPersistentMaps(ctx context.Context) (int, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return 0, err
	}
	maps, err := acct.PersistentMaps(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for serial, plans := range maps {
		err := c.Pool.SetPersistentMaps(ctx, serial, len(plans) > 0)
		switch {
		case err == nil:
			n++
		case errors.Is(err, registry.ErrNotFound):
			utils.ForRobot(serial).Debug("Skipping floor plans of an unknown robot")
		default:
			return n, err
		}
	}
	return n, nil
}

// Cleanup 리소스 정리
func (c *Container) Cleanup() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	utils.Logger.Info("Container cleanup completed")
}

// =============================================================================
// Bridge Service
// =============================================================================

// BridgeService MQTT 브리지, API, 관리 서버 실행
type BridgeService struct {
	container *Container
	bridge    *messaging.Bridge
	api       *api.Server
	admin     *admin.Server
}

// NewBridgeService 새 브리지 서비스 생성
func NewBridgeService(container *Container) *BridgeService {
	return &BridgeService{container: container}
}

// Run 브릿지 서비스 시작, ctx가 취소될 때까지 블록
func (s *BridgeService) Run(ctx context.Context) error {
	c := s.container
	cfg := c.Config

	s.bridge = messaging.NewBridge(ctx, c.MQTT, c.Dispatcher, cfg.MQTTTopicPrefix, cfg.RelayTimeout)
	router := messaging.NewRouter(cfg.MQTTTopicPrefix, s.bridge, c.Pool)
	if err := messaging.NewSubscriber(c.MQTT, router).SubscribeAll(); err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}

	s.api = api.NewServer(c.Dispatcher, c.Store, c.Recorder, cfg.RelayTimeout)
	s.admin = admin.NewServer(cfg.AdminAddr, c.MQTT, c.Pool, prometheus.DefaultGatherer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.api.Start(cfg.APIAddr) })
	g.Go(s.admin.Start)
	if cfg.SyncAccount && cfg.HasCredentials() && cfg.MapRefresh > 0 {
		g.Go(func() error {
			s.refreshMaps(gctx, cfg.MapRefresh)
			return nil
		})
	}
	if cfg.RobotsFile != "" && cfg.WatchRobots {
		g.Go(func() error {
			return registry.Watch(gctx, cfg.RobotsFile, s.reloadRobots(gctx))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	utils.Logger.Infof("🚀 Botvac bridge started (topics %s, api %s, admin %s)",
		messaging.CommandTopic(cfg.MQTTTopicPrefix), cfg.APIAddr, cfg.AdminAddr)
	return g.Wait()
}

// reloadRobots 변경된 로봇 파일을 저장하고 캐시된 세션을 비워 새 식별 정보 적용
func (s *BridgeService) reloadRobots(ctx context.Context) func([]robot.Identity) {
	return func(ids []robot.Identity) {
		if err := registry.SaveAll(ctx, s.container.Store, ids); err != nil {
			utils.Logger.Errorf("Failed to store reloaded robots: %v", err)
			return
		}
		s.container.Pool.Flush()
		utils.Logger.Infof("🔄 Reloaded %d robots from %s", len(ids), s.container.Config.RobotsFile)
	}
}

// refreshMaps ctx가 끝날 때까지 interval마다 평면도 갱신, 실패는 로그 후 다음 주기에 재시도
func (s *BridgeService) refreshMaps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.container.RefreshPersistentMaps(ctx)
			if err != nil {
				utils.Logger.Errorf("❌ Persistent map refresh failed: %v", err)
				continue
			}
			utils.Logger.Debugf("🗺️ Refreshed persistent maps of %d robots", n)
		}
	}
}

func (s *BridgeService) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := s.api.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if err := s.admin.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
	}
	s.bridge.Wait()
	utils.Logger.Info("💤 Bridge service stopped")
	return errors.Join(errs...)
}
