package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// Valores por defecto del bot original.
const (
	DefaultTargetPrice = 100000
	DefaultMaxPrice    = 150000
)

// Config es la configuración completa del bidder.
type Config struct {
	Bidding BiddingConfig `yaml:"bidding"`
	Crawler CrawlerConfig `yaml:"crawler"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// BiddingConfig contiene los umbrales globales y los productos a vigilar.
type BiddingConfig struct {
	TargetPrice int64    `yaml:"target_price"` // 0 = DefaultTargetPrice
	MaxPrice    int64    `yaml:"max_price"`    // 0 = DefaultMaxPrice
	AutoBid     *bool    `yaml:"auto_bid"`     // nil = true
	Targets     []Target `yaml:"targets"`
}

// Target es un producto/talla. Los precios en 0 heredan los globales.
type Target struct {
	ProductID   string `yaml:"product_id"`
	Size        string `yaml:"size"`
	TargetPrice int64  `yaml:"target_price,omitempty"`
	MaxPrice    int64  `yaml:"max_price,omitempty"`
}

// CrawlerConfig controla el ritmo de polling. Tiempos en segundos.
type CrawlerConfig struct {
	CheckInterval     int     `yaml:"check_interval"`
	MaxDuration       int     `yaml:"max_duration"` // 0 = sin límite
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxBackoff        int     `yaml:"max_backoff"`  // 0 = solo el techo fijo de 24h
	MaxFailures       int     `yaml:"max_failures"` // 0 = ilimitado
}

// APIConfig contiene el endpoint del marketplace.
type APIConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Token             string  `yaml:"token"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN        string `yaml:"dsn"`         // ruta al archivo SQLite, o ":memory:"
	FlushEvery int    `yaml:"flush_every"` // snapshots entre flushes
	ExportDir  string `yaml:"export_dir"`  // destino de los CSV
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file"`   // además de stdout; vacío = solo stdout
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML. Con path vacío
// solo se usan entorno y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// CheckInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Crawler.CheckInterval) * time.Second
}

// MaxDuration devuelve la duración máxima de una sesión (0 = sin límite).
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Crawler.MaxDuration) * time.Second
}

// APITimeout devuelve el timeout por request HTTP.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// AutoBid indica si se envían pujas o solo se monitoriza.
func (c *Config) AutoBid() bool {
	return c.Bidding.AutoBid == nil || *c.Bidding.AutoBid
}

// Validate comprueba la configuración completa antes de arrancar.
// Devuelve *domain.ConfigurationError.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigurationError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &domain.ConfigurationError{Field: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if c.API.TimeoutSeconds <= 0 {
		return &domain.ConfigurationError{Field: "api.timeout_seconds", Reason: "must be > 0"}
	}
	if c.API.RequestsPerSecond <= 0 {
		return &domain.ConfigurationError{Field: "api.requests_per_second", Reason: "must be > 0"}
	}
	if c.Storage.FlushEvery < 1 {
		return &domain.ConfigurationError{Field: "storage.flush_every", Reason: "must be >= 1"}
	}
	_, err := c.Sessions()
	return err
}

// SessionConfig es un target listo para crear una sesión de puja.
type SessionConfig struct {
	ProductID string
	Size      string
	Bidding   domain.BiddingConfig
}

// Sessions construye y valida la config de puja de cada target.
func (c *Config) Sessions() ([]SessionConfig, error) {
	if len(c.Bidding.Targets) == 0 {
		return nil, &domain.ConfigurationError{Field: "bidding.targets", Reason: "needs at least one product"}
	}

	out := make([]SessionConfig, 0, len(c.Bidding.Targets))
	seen := make(map[string]bool, len(c.Bidding.Targets))
	for i, t := range c.Bidding.Targets {
		field := fmt.Sprintf("bidding.targets[%d]", i)
		if t.ProductID == "" {
			return nil, &domain.ConfigurationError{Field: field + ".product_id", Reason: "is required"}
		}
		if t.Size == "" {
			return nil, &domain.ConfigurationError{Field: field + ".size", Reason: "is required"}
		}
		key := t.ProductID + "/" + t.Size
		if seen[key] {
			return nil, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("duplicates %s", key)}
		}
		seen[key] = true

		target, maxPrice := c.Bidding.TargetPrice, c.Bidding.MaxPrice
		if t.TargetPrice != 0 {
			target = t.TargetPrice
		}
		if t.MaxPrice != 0 {
			maxPrice = t.MaxPrice
		}

		bc, err := domain.NewBiddingConfig(target, maxPrice, c.CheckInterval(),
			domain.WithMaxDuration(c.MaxDuration()),
			domain.WithAutoBid(c.AutoBid()),
			domain.WithBackoff(domain.Backoff{
				Multiplier:  c.Crawler.BackoffMultiplier,
				MaxInterval: time.Duration(c.Crawler.MaxBackoff) * time.Second,
			}),
			domain.WithMaxSourceFailures(c.Crawler.MaxFailures),
		)
		if err != nil {
			var ce *domain.ConfigurationError
			if errors.As(err, &ce) {
				return nil, &domain.ConfigurationError{Field: field + "." + ce.Field, Reason: ce.Reason}
			}
			return nil, err
		}
		out = append(out, SessionConfig{ProductID: t.ProductID, Size: t.Size, Bidding: bc})
	}
	return out, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TARGET_PRICE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &domain.ConfigurationError{Field: "TARGET_PRICE", Reason: fmt.Sprintf("%q is not an integer", v)}
		}
		cfg.Bidding.TargetPrice = n
	}
	if v := os.Getenv("MAX_PRICE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &domain.ConfigurationError{Field: "MAX_PRICE", Reason: fmt.Sprintf("%q is not an integer", v)}
		}
		cfg.Bidding.MaxPrice = n
	}
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigurationError{Field: "CHECK_INTERVAL", Reason: fmt.Sprintf("%q is not an integer", v)}
		}
		cfg.Crawler.CheckInterval = n
	}
	if v := os.Getenv("KREAM_API_BASE"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("KREAM_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

// setDefaults rellena los valores no configurados. Los valores negativos se
// dejan tal cual para que Validate los rechace.
func setDefaults(cfg *Config) {
	if cfg.Bidding.TargetPrice == 0 {
		cfg.Bidding.TargetPrice = DefaultTargetPrice
	}
	if cfg.Bidding.MaxPrice == 0 {
		cfg.Bidding.MaxPrice = DefaultMaxPrice
	}
	if cfg.Crawler.CheckInterval == 0 {
		cfg.Crawler.CheckInterval = int(domain.DefaultPollInterval / time.Second)
	}
	if cfg.Crawler.BackoffMultiplier == 0 {
		cfg.Crawler.BackoffMultiplier = domain.DefaultBackoffMultiplier
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://kream.co.kr"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.API.RequestsPerSecond == 0 {
		cfg.API.RequestsPerSecond = 1
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kreambot.db"
	}
	if cfg.Storage.FlushEvery == 0 {
		cfg.Storage.FlushEvery = 10
	}
	if cfg.Storage.ExportDir == "" {
		cfg.Storage.ExportDir = "data"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
