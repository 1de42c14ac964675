package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"

	apperrors "subscription-bridge/internal/errors"
)

const (
	SignatureModeStrict  = "strict"
	SignatureModeLenient = "lenient"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database
	Admin       Admin
	Link        Link

	Prodamus  Prodamus  `envPrefix:"PRODAMUS_"`
	Reconcile Reconcile `envPrefix:"RECONCILE_"`
	Telegram  Telegram  `envPrefix:"TG_"`
	Enforcer  Enforcer  `envPrefix:"ENFORCER_"`

	Tariffs          []Tariff `env:"TARIFFS" envSeparator:";" envDefault:"month|30|1299|Услуги доступа к клубу срок 1 месяц;quarter|90|3599|Услуги доступа к клубу срок 3 месяца;year|365|12900|Услуги доступа к клубу срок 12 месяцев"`
	WebhookProviders []string `env:"WEBHOOK_PROVIDERS" envDefault:"prodamus"`
}

type Prodamus struct {
	Secret                string `env:"SECRET"`
	InsecureSkipSignature bool   `env:"INSECURE_SKIP_SIGNATURE"`
	SignatureMode         string `env:"SIGNATURE_MODE" envDefault:"strict"`
	PayformURL            string `env:"PAYFORM_URL" envDefault:"https://soulway.payform.ru/"`
	SuccessStatus         string `env:"SUCCESS_STATUS" envDefault:"success"`
	Currency              string `env:"CURRENCY" envDefault:"rub"`
}

type Link struct {
	Secret string `env:"BOT_LINK_SECRET"`
}

type Reconcile struct {
	PriceDays map[string]int `env:"PRICE_DAYS" envDefault:"1299:30,3599:90,12900:365"`
	NameUnits map[string]int `env:"NAME_UNITS" envDefault:"месяц:30,месяца:30,месяцев:30,мес:30,month:30,months:30,год:365,года:365,лет:365,year:365,years:365,день:1,дня:1,дней:1,day:1,days:1"`
}

type Telegram struct {
	BotToken       string        `env:"BOT_TOKEN"`
	BaseApiURL     string        `env:"API_URL" envDefault:"https://api.telegram.org"`
	GroupID        string        `env:"GROUP_ID"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

type Enforcer struct {
	Schedule    string        `env:"SCHEDULE" envDefault:"@every 30m"`
	BanDuration time.Duration `env:"BAN_DURATION" envDefault:"60s"`
	Pause       time.Duration `env:"PAUSE" envDefault:"80ms"`
}

type Admin struct {
	Token string `env:"ADMIN_TOKEN"`
}

type Database struct {
	Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	URL    string `env:"DATABASE_URL" envDefault:"subscriptions.db"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host            string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Tariff is a purchasable plan, configured as "code|days|price|product name".
type Tariff struct {
	Code        string
	Days        int
	Price       decimal.Decimal
	ProductName string
}

func (t *Tariff) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), "|", 4)
	if len(parts) != 4 {
		return fmt.Errorf("tariff %q: want code|days|price|name", text)
	}

	days, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("tariff %q: days: %w", text, err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return fmt.Errorf("tariff %q: price: %w", text, err)
	}

	*t = Tariff{
		Code:        strings.TrimSpace(parts[0]),
		Days:        days,
		Price:       price,
		ProductName: strings.TrimSpace(parts[3]),
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Configuration("config.parse", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails on missing secrets and unusable tables.
func (c *Config) Validate() error {
	var errs []error

	if c.Link.Secret == "" {
		errs = append(errs, errors.New("BOT_LINK_SECRET is required"))
	}
	if c.Prodamus.Secret == "" && !c.Prodamus.InsecureSkipSignature {
		errs = append(errs, errors.New("PRODAMUS_SECRET is required unless PRODAMUS_INSECURE_SKIP_SIGNATURE=true"))
	}
	switch c.Prodamus.SignatureMode {
	case SignatureModeStrict, SignatureModeLenient:
	default:
		errs = append(errs, fmt.Errorf("PRODAMUS_SIGNATURE_MODE must be %q or %q, got %q",
			SignatureModeStrict, SignatureModeLenient, c.Prodamus.SignatureMode))
	}
	if _, err := c.PriceDaysTable(); err != nil {
		errs = append(errs, err)
	}
	for unit, days := range c.Reconcile.NameUnits {
		if days <= 0 {
			errs = append(errs, fmt.Errorf("RECONCILE_NAME_UNITS: unit %q has non-positive days", unit))
		}
	}
	for _, t := range c.Tariffs {
		if t.Code == "" || t.Days <= 0 || !t.Price.IsPositive() {
			errs = append(errs, fmt.Errorf("TARIFFS: invalid tariff %q", t.Code))
		}
	}
	if len(c.WebhookProviders) == 0 {
		errs = append(errs, errors.New("WEBHOOK_PROVIDERS must name at least one provider"))
	}

	if len(errs) > 0 {
		return apperrors.Configuration("config.validate", errors.Join(errs...))
	}
	return nil
}

// SignatureStrict reports whether a bad provider signature is rejected (400)
// rather than acknowledged and ignored.
func (c *Config) SignatureStrict() bool {
	return c.Prodamus.SignatureMode != SignatureModeLenient
}

// PriceDaysTable converts RECONCILE_PRICE_DAYS keys to whole prices.
func (c *Config) PriceDaysTable() (map[int64]int, error) {
	out := make(map[int64]int, len(c.Reconcile.PriceDays))
	for raw, days := range c.Reconcile.PriceDays {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || price.IntPart() <= 0 {
			return nil, fmt.Errorf("RECONCILE_PRICE_DAYS: bad price %q", raw)
		}
		if days <= 0 {
			return nil, fmt.Errorf("RECONCILE_PRICE_DAYS: price %q has non-positive days", raw)
		}
		out[price.IntPart()] = days
	}
	return out, nil
}

// NameUnitsTable returns RECONCILE_NAME_UNITS with lowercased units.
func (c *Config) NameUnitsTable() map[string]int {
	out := make(map[string]int, len(c.Reconcile.NameUnits))
	for unit, days := range c.Reconcile.NameUnits {
		out[strings.ToLower(strings.TrimSpace(unit))] = days
	}
	return out
}

// Tariff looks a plan up by code.
func (c *Config) Tariff(code string) (Tariff, bool) {
	for _, t := range c.Tariffs {
		if strings.EqualFold(t.Code, code) {
			return t, true
		}
	}
	return Tariff{}, false
}

func (c *Config) Addr() string {
	return c.HTTP.Host + ":" + c.HTTP.Port
}
