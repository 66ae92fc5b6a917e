package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const minTickInterval = 10 * time.Millisecond

type Config struct {
	Camera    CameraConfig   `mapstructure:"camera"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Whitelist string         `mapstructure:"whitelist_path"`
	Storage   StorageConfig  `mapstructure:"storage"`
	HTTP      HTTPConfig     `mapstructure:"http"`
	Notify    NotifyConfig   `mapstructure:"notify"`
	Log       LogConfig      `mapstructure:"log"`
}

type CameraConfig struct {
	Source string `mapstructure:"source"`
	ID     string `mapstructure:"id"`
}

type PipelineConfig struct {
	Live            bool    `mapstructure:"live"`
	TickIntervalMS  int     `mapstructure:"tick_interval_ms"`
	EnableDetection bool    `mapstructure:"enable_detection"`
	DetectorURL     string  `mapstructure:"detector_url"`
	DetectorConf    float64 `mapstructure:"detector_conf"`
	DetectorLabels  string  `mapstructure:"detector_labels"`
	PersonLabels    string  `mapstructure:"person_labels"`
	VehicleLabels   string  `mapstructure:"vehicle_labels"`
	PlateWeights    string  `mapstructure:"plate_weights"`
	PlateConf       float64 `mapstructure:"plate_conf"`
	OCRURL          string  `mapstructure:"ocr_url"`
	OCRLangs        string  `mapstructure:"ocr_langs"`
}

// TickInterval is the scheduler period, never below 10ms.
func (p PipelineConfig) TickInterval() time.Duration {
	d := time.Duration(p.TickIntervalMS) * time.Millisecond
	if d < minTickInterval {
		return minTickInterval
	}
	return d
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type NotifyConfig struct {
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Email    EmailConfig    `mapstructure:"email"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

type WhatsAppConfig struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	From        string `mapstructure:"from"`
	To          string `mapstructure:"to"`
	CooldownSec int    `mapstructure:"cooldown_sec"`
	BaseURL     string `mapstructure:"base_url"`
}

type EmailConfig struct {
	SMTPHost    string `mapstructure:"smtp_host"`
	SMTPPort    int    `mapstructure:"smtp_port"`
	SMTPUser    string `mapstructure:"smtp_user"`
	SMTPPass    string `mapstructure:"smtp_pass"`
	From        string `mapstructure:"from"`
	To          string `mapstructure:"to"`
	CooldownSec int    `mapstructure:"cooldown_sec"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type option struct {
	key string
	env string
	def any
}

// options lists every recognized key with its environment variable and default.
var options = []option{
	{"camera.source", "GATEWATCH_CAMERA_SOURCE", "0"},
	{"camera.id", "GATEWATCH_CAMERA_ID", "gate-1"},

	{"pipeline.live", "GATEWATCH_ENABLE_LIVE_PIPELINE", false},
	{"pipeline.tick_interval_ms", "GATEWATCH_TICK_INTERVAL_MS", 100},
	{"pipeline.enable_detection", "GATEWATCH_ENABLE_YOLO", true},
	{"pipeline.detector_url", "GATEWATCH_DETECTOR_URL", "http://127.0.0.1:9000/detect"},
	{"pipeline.detector_conf", "GATEWATCH_DET_CONF", 0.25},
	{"pipeline.detector_labels", "GATEWATCH_DET_LABELS", ""},
	{"pipeline.person_labels", "GATEWATCH_PERSON_LABELS", "person"},
	{"pipeline.vehicle_labels", "GATEWATCH_VEHICLE_LABELS", "car,truck,bus,motorcycle"},
	{"pipeline.plate_weights", "GATEWATCH_PLATE_DET_WEIGHTS", ""},
	{"pipeline.plate_conf", "GATEWATCH_PLATE_DET_CONF", 0.25},
	{"pipeline.ocr_url", "GATEWATCH_OCR_URL", "http://127.0.0.1:9000/plate"},
	{"pipeline.ocr_langs", "GATEWATCH_OCR_LANGS", "en"},

	{"whitelist_path", "GATEWATCH_WHITELIST_PATH", "configs/whitelist.json"},

	{"storage.driver", "GATEWATCH_DB_DRIVER", "sqlite"},
	{"storage.path", "GATEWATCH_DB_PATH", "data/gatewatch.db"},
	{"storage.dsn", "GATEWATCH_DB_DSN", ""},

	{"http.addr", "GATEWATCH_HTTP_ADDR", "127.0.0.1:8000"},
	{"http.jwt_secret", "GATEWATCH_JWT_SECRET", ""},
	{"http.cors_origins", "GATEWATCH_CORS_ORIGINS", "*"},

	{"notify.webhook.url", "GATEWATCH_WEBHOOK_URL", ""},

	{"notify.whatsapp.account_sid", "GATEWATCH_TWILIO_ACCOUNT_SID", ""},
	{"notify.whatsapp.auth_token", "GATEWATCH_TWILIO_AUTH_TOKEN", ""},
	{"notify.whatsapp.from", "GATEWATCH_TWILIO_WHATSAPP_FROM", ""},
	{"notify.whatsapp.to", "GATEWATCH_TWILIO_WHATSAPP_TO", ""},
	{"notify.whatsapp.cooldown_sec", "GATEWATCH_WHATSAPP_COOLDOWN_SEC", 30},
	{"notify.whatsapp.base_url", "GATEWATCH_TWILIO_BASE_URL", "https://api.twilio.com"},

	{"notify.email.smtp_host", "GATEWATCH_SMTP_HOST", ""},
	{"notify.email.smtp_port", "GATEWATCH_SMTP_PORT", 587},
	{"notify.email.smtp_user", "GATEWATCH_SMTP_USER", ""},
	{"notify.email.smtp_pass", "GATEWATCH_SMTP_PASS", ""},
	{"notify.email.from", "GATEWATCH_EMAIL_FROM", ""},
	{"notify.email.to", "GATEWATCH_EMAIL_TO", ""},
	{"notify.email.cooldown_sec", "GATEWATCH_EMAIL_COOLDOWN_SEC", 300},

	{"notify.mqtt.broker", "GATEWATCH_MQTT_BROKER", ""},
	{"notify.mqtt.topic", "GATEWATCH_MQTT_TOPIC", ""},
	{"notify.mqtt.client_id", "GATEWATCH_MQTT_CLIENT_ID", "gatewatch"},

	{"log.level", "GATEWATCH_LOG_LEVEL", "info"},
	{"log.format", "GATEWATCH_LOG_FORMAT", "console"},
}

// Load reads configuration from the environment and, when path is not
// empty, from a YAML config file. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for _, o := range options {
		v.SetDefault(o.key, o.def)
		if err := v.BindEnv(o.key, o.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", o.env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		flagHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make the service misbehave at runtime.
func (c *Config) Validate() error {
	if c.Pipeline.DetectorConf < 0 || c.Pipeline.DetectorConf > 1 {
		return fmt.Errorf("pipeline.detector_conf must be in [0,1], got %v", c.Pipeline.DetectorConf)
	}
	if c.Pipeline.PlateConf < 0 || c.Pipeline.PlateConf > 1 {
		return fmt.Errorf("pipeline.plate_conf must be in [0,1], got %v", c.Pipeline.PlateConf)
	}
	if c.Notify.Email.SMTPPort < 1 || c.Notify.Email.SMTPPort > 65535 {
		return fmt.Errorf("notify.email.smtp_port must be in 1..65535, got %d", c.Notify.Email.SMTPPort)
	}
	if c.Notify.WhatsApp.CooldownSec < 0 || c.Notify.Email.CooldownSec < 0 {
		return fmt.Errorf("notifier cooldowns must not be negative")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// flagHookFunc accepts the on/off spellings operators use in env files on
// top of what strconv.ParseBool understands.
func flagHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
			return data, nil
		}
		switch strings.ToLower(strings.TrimSpace(data.(string))) {
		case "1", "t", "true", "y", "yes", "on":
			return true, nil
		case "", "0", "f", "false", "n", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", data)
	}
}

// SplitLabels parses a comma separated label list into a lowercased set.
func SplitLabels(csv string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.Split(csv, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
