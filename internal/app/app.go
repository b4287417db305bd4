package app

import (
	"context"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"github.com/talkincode/toughpos/config"
	"github.com/talkincode/toughpos/internal/catalog"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/localstore"
	"github.com/talkincode/toughpos/internal/loyalty"
	"github.com/talkincode/toughpos/internal/notify"
	"github.com/talkincode/toughpos/internal/notify/clients"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/internal/purchase"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	sched         *cron.Cron
	configManager *ConfigManager

	bus       *events.Bus
	rdb       *redis.Client
	local     *localstore.Store
	messenger *notify.Service
	retry     *resilient.Client
	catalog   *catalog.Service
	checkout  *checkout.Service
	purchase  *purchase.Service
	loyalty   *loyalty.Service
}

// Ensure Application implements all interfaces
var (
	_ DBProvider            = (*Application)(nil)
	_ ConfigProvider        = (*Application)(nil)
	_ SettingsProvider      = (*Application)(nil)
	_ SchedulerProvider     = (*Application)(nil)
	_ ConfigManagerProvider = (*Application)(nil)
	_ ServiceProvider       = (*Application)(nil)
	_ AppContext            = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func initLogger(cfg config.LogConfig) {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	initLogger(cfg.Logger)

	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.seed()

	a.configManager = NewConfigManager(a)

	if err := a.InitServices(); err != nil {
		zap.S().Fatalf("service initialization failed: %v", err)
	}
	a.initJob()
}

// InitServices wires the business services. It expects the database and the
// configuration manager to be ready.
func (a *Application) InitServices() error {
	cfg := a.appConfig
	if a.configManager == nil {
		a.configManager = NewConfigManager(a)
	}

	a.retry = resilient.NewClient(resilient.Policy{
		MaxAttempts:     cfg.Pos.RetryMaxAttempts,
		InitialInterval: time.Duration(cfg.Pos.RetryInitialMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Pos.RetryMaxMs) * time.Millisecond,
	})
	a.bus = events.NewBus()

	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		return err
	}
	local, err := localstore.Open(path.Join(cfg.GetDataDir(), "local.db"))
	if err != nil {
		return err
	}
	a.local = local

	var productRepo catalog.ProductRepository = catalog.NewGormProductRepository(a.gormDB)
	if cfg.Redis.Enabled {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		productRepo = catalog.NewCachedProductRepository(productRepo, a.rdb, time.Duration(cfg.Redis.TTL)*time.Second)
		zap.L().Info("product cache enabled", zap.String("addr", cfg.Redis.Addr), zap.String("namespace", "app"))
	}

	a.messenger = notify.NewService(notify.NewGormMessageLogRepository(a.gormDB), a.notifyClients()...)

	var ls LoyaltySettings
	if err := a.configManager.Decode("loyalty", &ls); err != nil {
		zap.L().Warn("invalid loyalty settings", zap.Error(err), zap.String("namespace", "app"))
	}
	a.loyalty = loyalty.NewService(loyalty.NewGormRepository(a.gormDB), a.retry, a.messenger, loyalty.Settings{
		PointsPerUnit: ls.PointsPerUnit,
		Workers:       ls.CampaignWorkers,
	})
	a.catalog = catalog.NewService(productRepo, a.retry, a.local)
	a.purchase = purchase.NewService(purchase.NewGormRepository(a.gormDB), a.retry, a.bus)
	a.checkout = checkout.NewService(
		checkout.NewGormSaleStore(a.gormDB),
		checkout.NewGormPermissionChecker(a.gormDB),
		checkout.WithRetry(a.retry),
		checkout.WithEventBus(a.bus),
		checkout.WithLoyalty(a.loyalty),
		checkout.WithDrafts(a.local),
		checkout.WithReceipts(a.messenger, NewGormContactLookup(a.gormDB)),
		checkout.WithOptions(a.configManager.CheckoutOptions()),
	)

	if err := a.subscribe(); err != nil {
		return err
	}
	if err := a.catalog.RefreshIndex(context.Background()); err != nil {
		zap.L().Warn("build sku index failed", zap.Error(err), zap.String("namespace", "app"))
	}
	return nil
}

func (a *Application) notifyClients() []clients.Client {
	n := a.appConfig.Notify
	var cs []clients.Client
	if n.SmsGateway != "" {
		c, err := clients.NewSmsGatewayClient(n.SmsGateway, n.SmsToken, n.SmsSender)
		if err != nil {
			zap.L().Error("sms client init failed", zap.Error(err), zap.String("namespace", "app"))
		} else {
			cs = append(cs, c)
		}
	}
	if n.SmtpHost != "" {
		c, err := clients.NewSmtpClient(n.SmtpHost, n.SmtpPort, n.SmtpUser, n.SmtpPassword, n.SmtpFrom)
		if err != nil {
			zap.L().Error("smtp client init failed", zap.Error(err), zap.String("namespace", "app"))
		} else {
			cs = append(cs, c)
		}
	}
	return cs
}

// subscribe connects the event consumers
func (a *Application) subscribe() error {
	if err := a.loyalty.Subscribe(a.bus); err != nil {
		return err
	}
	if err := a.bus.SubscribeAsync(events.TopicSaleCompleted, func(ev events.SaleCompleted) {
		metrics.Incr("pos_sales_count", 1)
		metrics.Incr("pos_sales_amount", ev.Total.InexactFloat64())
	}); err != nil {
		return err
	}
	return a.bus.SubscribeAsync(events.TopicPurchaseReceived, func(ev events.PurchaseReceived) {
		if err := a.catalog.RefreshIndex(context.Background()); err != nil {
			zap.L().Warn("refresh sku index failed", zap.Error(err), zap.String("namespace", "app"))
		}
		items, err := a.catalog.LowStock(context.Background(), 0)
		if err == nil {
			metrics.SetGauge("pos_low_stock_items", int64(len(items)))
		}
		zap.L().Info("purchase order received",
			zap.Int64("purchase_order_id", ev.PurchaseOrderID),
			zap.Int("lines", len(ev.Lines)),
			zap.String("namespace", "purchase"))
	})
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
	a.seed()
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Catalog() *catalog.Service     { return a.catalog }
func (a *Application) Checkout() *checkout.Service   { return a.checkout }
func (a *Application) Purchase() *purchase.Service   { return a.purchase }
func (a *Application) Loyalty() *loyalty.Service     { return a.loyalty }
func (a *Application) Messenger() *notify.Service    { return a.messenger }
func (a *Application) LocalStore() *localstore.Store { return a.local }
func (a *Application) Bus() *events.Bus              { return a.bus }

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}

// SaveSettings stores "category.name" keyed values. The checkout options are
// rebuilt so a new tax rate applies to the next sale.
func (a *Application) SaveSettings(settings map[string]interface{}) error {
	for key, v := range settings {
		category, name, ok := strings.Cut(key, ".")
		if !ok || category == "" || name == "" {
			return errors.Errorf("invalid setting key %q", key)
		}
		if err := a.configManager.Set(category, name, cast.ToString(v)); err != nil {
			return err
		}
	}
	if a.checkout != nil {
		a.checkout.SetOptions(a.configManager.CheckoutOptions())
	}
	return nil
}

// StartBackgroundJobs starts the scheduler job runner
func (a *Application) StartBackgroundJobs(ctx context.Context) {
	a.StartSchedulerService(ctx)
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.bus != nil {
		a.bus.Wait()
	}
	if a.messenger != nil {
		a.messenger.Close()
	}
	if a.local != nil {
		_ = a.local.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
