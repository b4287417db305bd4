package config

import (
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TOUGHPOS_"

type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Type     string `yaml:"type"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"` // seconds
}

type NotifyConfig struct {
	SmsGateway   string `yaml:"sms_gateway"`
	SmsToken     string `yaml:"sms_token"`
	SmsSender    string `yaml:"sms_sender"`
	SmtpHost     string `yaml:"smtp_host"`
	SmtpPort     int    `yaml:"smtp_port"`
	SmtpUser     string `yaml:"smtp_user"`
	SmtpPassword string `yaml:"smtp_password"`
	SmtpFrom     string `yaml:"smtp_from"`
}

// PosConfig holds process level retry and worker settings,
// business rules live in sys_config
type PosConfig struct {
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	RetryInitialMs   int `yaml:"retry_initial_ms"`
	RetryMaxMs       int `yaml:"retry_max_ms"`
	Workers          int `yaml:"workers"`
	DraftTTLHours    int `yaml:"draft_ttl_hours"`
}

type AppConfig struct {
	System   SysConfig    `yaml:"system"`
	Web      WebConfig    `yaml:"web"`
	Database DBConfig     `yaml:"database"`
	Logger   LogConfig    `yaml:"logger"`
	Redis    RedisConfig  `yaml:"redis"`
	Notify   NotifyConfig `yaml:"notify"`
	Pos      PosConfig    `yaml:"pos"`
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetBackupDir() string {
	return path.Join(c.System.Workdir, "backup")
}

func (c *AppConfig) initDirs() {
	_ = os.MkdirAll(c.GetDataDir(), 0o755)
	_ = os.MkdirAll(c.GetLogDir(), 0o755)
	_ = os.MkdirAll(c.GetBackupDir(), 0o755)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "ToughPOS",
		Location: "Asia/Shanghai",
		Workdir:  "/var/toughpos",
	},
	Web: WebConfig{Host: "0.0.0.0", Port: 1816},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "toughpos",
		User:     "postgres",
		Passwd:   "postgres",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:     "development",
		Filename: "/var/toughpos/logs/toughpos.log",
	},
	Redis: RedisConfig{Addr: "127.0.0.1:6379", TTL: 300},
	Notify: NotifyConfig{
		SmtpPort: 587,
	},
	Pos: PosConfig{
		RetryMaxAttempts: 3,
		RetryInitialMs:   200,
		RetryMaxMs:       2000,
		Workers:          16,
		DraftTTLHours:    72,
	},
}

// LoadConfig reads the yaml file (if any), then a .env file, then TOUGHPOS_* overrides
func LoadConfig(cfile string) *AppConfig {
	cfg := *DefaultAppConfig
	if cfile == "" {
		cfile = "toughpos.yml"
	}
	if data, err := os.ReadFile(cfile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(&cfg)

	cfg.initDirs()
	return &cfg
}

func setEnvString(name string, v *string) {
	if s, ok := os.LookupEnv(envPrefix + name); ok && strings.TrimSpace(s) != "" {
		*v = s
	}
}

func setEnvInt(name string, v *int) {
	if s, ok := os.LookupEnv(envPrefix + name); ok && strings.TrimSpace(s) != "" {
		*v = cast.ToInt(s)
	}
}

func setEnvBool(name string, v *bool) {
	if s, ok := os.LookupEnv(envPrefix + name); ok && strings.TrimSpace(s) != "" {
		*v = cast.ToBool(s)
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvString("SYSTEM_LOCATION", &cfg.System.Location)
	setEnvString("SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvBool("SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvString("WEB_HOST", &cfg.Web.Host)
	setEnvInt("WEB_PORT", &cfg.Web.Port)

	setEnvString("DB_TYPE", &cfg.Database.Type)
	setEnvString("DB_HOST", &cfg.Database.Host)
	setEnvInt("DB_PORT", &cfg.Database.Port)
	setEnvString("DB_NAME", &cfg.Database.Name)
	setEnvString("DB_USER", &cfg.Database.User)
	setEnvString("DB_PWD", &cfg.Database.Passwd)
	setEnvBool("DB_DEBUG", &cfg.Database.Debug)

	setEnvString("LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBool("LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvString("LOGGER_FILENAME", &cfg.Logger.Filename)

	setEnvBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	setEnvString("REDIS_ADDR", &cfg.Redis.Addr)
	setEnvString("REDIS_PASSWORD", &cfg.Redis.Password)
	setEnvInt("REDIS_DB", &cfg.Redis.DB)

	setEnvString("SMS_GATEWAY", &cfg.Notify.SmsGateway)
	setEnvString("SMS_TOKEN", &cfg.Notify.SmsToken)
	setEnvString("SMTP_HOST", &cfg.Notify.SmtpHost)
	setEnvInt("SMTP_PORT", &cfg.Notify.SmtpPort)
	setEnvString("SMTP_USER", &cfg.Notify.SmtpUser)
	setEnvString("SMTP_PASSWORD", &cfg.Notify.SmtpPassword)
	setEnvString("SMTP_FROM", &cfg.Notify.SmtpFrom)

	setEnvInt("POS_RETRY_MAX_ATTEMPTS", &cfg.Pos.RetryMaxAttempts)
	setEnvInt("POS_WORKERS", &cfg.Pos.Workers)
}
