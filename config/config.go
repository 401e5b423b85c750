package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" default:"https://api.weprettify.com/APIs/APIs.asmx" validate:"required,url"`
	GatewayToken   string        `envconfig:"GATEWAY_TOKEN" default:"SWNCMPMSREMXAMCKALVAALI" validate:"required"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s" validate:"gt=0"`
	ImageBaseURL   string        `envconfig:"IMAGE_BASE_URL" default:"https://weprettify.com/Images/" validate:"required,url"`

	// VendorPhone identifies the vendor on every holder-scoped gateway call.
	VendorPhone string `envconfig:"VENDOR_PHONE" validate:"required"`

	LeadDeadlineSeconds int           `envconfig:"LEAD_DEADLINE_SECONDS" default:"60" validate:"min=1"`
	LeadTick            time.Duration `envconfig:"LEAD_TICK" default:"1s" validate:"gt=0"`

	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"8s" validate:"gt=0"`
	PollKeyPolicy string        `envconfig:"POLL_KEY_POLICY" default:"identity" validate:"oneof=identity content"`
	DefaultLat    float64       `envconfig:"DEFAULT_LAT" default:"28.6139" validate:"latitude"`
	DefaultLon    float64       `envconfig:"DEFAULT_LON" default:"77.209" validate:"longitude"`

	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=1"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	CSVOutputPath string `envconfig:"CSV_OUTPUT_PATH" default:"./output/orders.csv"`

	// Lead outcome journal. Disabled when PostgresHost is empty.
	PostgresHost     string `envconfig:"POSTGRES_HOST"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"vendor"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"vendor_desk"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// Load reads the .env file and returns a populated, validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of every field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// JournalEnabled reports whether lead outcomes should be written to PostgreSQL.
func (c *Config) JournalEnabled() bool {
	return c.PostgresHost != ""
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}
