package app

import (
	_ "embed"
	"reflect"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed config_schemas.json
var configSchemasData []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ConfigSchema struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	Default     string `json:"default"`
	Description string `json:"description"`
}

type ConfigSchemasJSON struct {
	Schemas []ConfigSchema `json:"schemas"`
}

func loadConfigSchemas() ([]ConfigSchema, error) {
	var data ConfigSchemasJSON
	if err := json.Unmarshal(configSchemasData, &data); err != nil {
		return nil, errors.Wrap(err, "parse config schemas")
	}
	return data.Schemas, nil
}

// PosSettings business rules of the register, decoded from the pos category
type PosSettings struct {
	TaxRate        decimal.Decimal `mapstructure:"tax_rate"`
	Currency       string          `mapstructure:"currency"`
	AlertRecipient string          `mapstructure:"alert_recipient"`
}

type LoyaltySettings struct {
	PointsPerUnit   int64 `mapstructure:"points_per_unit"`
	CampaignWorkers int   `mapstructure:"campaign_workers"`
}

// ConfigManager caches sys_config rows keyed by category.name
type ConfigManager struct {
	db       *gorm.DB
	mu       sync.RWMutex
	values   map[string]string
	defaults map[string]string
}

func NewConfigManager(p DBProvider) *ConfigManager {
	m := &ConfigManager{
		db:       p.DB(),
		values:   make(map[string]string),
		defaults: make(map[string]string),
	}
	schemas, err := loadConfigSchemas()
	if err != nil {
		zap.L().Error("load config schemas failed", zap.Error(err), zap.String("namespace", "config"))
	}
	for _, s := range schemas {
		m.defaults[s.Key] = s.Default
	}
	if err := m.Reload(); err != nil {
		zap.L().Error("load settings failed", zap.Error(err), zap.String("namespace", "config"))
	}
	return m
}

// Reload replaces the cache with the current table contents
func (m *ConfigManager) Reload() error {
	var rows []domain.SysConfig
	if err := m.db.Find(&rows).Error; err != nil {
		return errors.Wrap(err, "query sys_config")
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Type+"."+r.Name] = r.Value
	}
	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
	return nil
}

func (m *ConfigManager) lookup(category, name string) string {
	key := category + "." + name
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return m.defaults[key]
}

func (m *ConfigManager) GetString(category, name string) string {
	return m.lookup(category, name)
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.lookup(category, name))
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.lookup(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.lookup(category, name))
}

func (m *ConfigManager) GetDecimal(category, name string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(m.lookup(category, name)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Set writes one value and updates the cache
func (m *ConfigManager) Set(category, name, value string) error {
	var row domain.SysConfig
	err := m.db.Where("type = ? AND name = ?", category, name).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = domain.SysConfig{ID: common.UUIDint64(), Type: category, Name: name, Value: value}
		err = m.db.Create(&row).Error
	case err == nil:
		err = m.db.Model(&row).Updates(map[string]interface{}{"value": value, "updated_at": time.Now()}).Error
	}
	if err != nil {
		return errors.Wrapf(err, "save setting %s.%s", category, name)
	}
	m.mu.Lock()
	m.values[category+"."+name] = value
	m.mu.Unlock()
	return nil
}

// Decode copies every setting of a category into out using mapstructure tags
func (m *ConfigManager) Decode(category string, out interface{}) error {
	prefix := category + "."
	input := make(map[string]interface{})
	m.mu.RLock()
	for k, v := range m.defaults {
		if strings.HasPrefix(k, prefix) {
			input[strings.TrimPrefix(k, prefix)] = v
		}
	}
	for k, v := range m.values {
		if strings.HasPrefix(k, prefix) {
			input[strings.TrimPrefix(k, prefix)] = v
		}
	}
	m.mu.RUnlock()

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       stringToDecimalHook,
	})
	if err != nil {
		return err
	}
	return errors.Wrapf(dec.Decode(input), "decode %s settings", category)
}

func stringToDecimalHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) || from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// CheckoutOptions builds the checkout options from the pos settings
func (m *ConfigManager) CheckoutOptions() checkout.Options {
	var s PosSettings
	if err := m.Decode("pos", &s); err != nil {
		zap.L().Warn("invalid pos settings", zap.Error(err), zap.String("namespace", "config"))
	}
	return checkout.Options{TaxRate: s.TaxRate}
}

// Values returns every known setting keyed by category.name, defaults included
func (m *ConfigManager) Values() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.defaults)+len(m.values))
	for k, v := range m.defaults {
		out[k] = v
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
