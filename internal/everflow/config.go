package everflow

import "time"

// Config for the upstream Everflow API client.
type Config struct {
	APIKey     string `envconfig:"EVERFLOW_API_KEY" required:"true"`
	BaseURL    string `envconfig:"EVERFLOW_BASE_URL" default:"https://api.eflow.team"`
	TimezoneID int    `envconfig:"EVERFLOW_TIMEZONE_ID" default:"67"`
	CurrencyID string `envconfig:"EVERFLOW_CURRENCY_ID"`

	ListTimeout   time.Duration `envconfig:"EVERFLOW_LIST_TIMEOUT" default:"10s"`
	ReportTimeout time.Duration `envconfig:"EVERFLOW_REPORT_TIMEOUT" default:"60s"`

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64 `envconfig:"EVERFLOW_RATE_LIMIT" default:"5"`
	RateBurst int     `envconfig:"EVERFLOW_RATE_BURST" default:"5"`
}

const (
	DefaultTimezoneID     = 67
	defaultListTimeout    = 10 * time.Second
	defaultReportTimeout  = 60 * time.Second
	listPageSize          = 50
	reportPageSize        = 100
	countryLookbackPeriod = 30 * 24 * time.Hour
)

func (c *Config) withDefaults() {
	if c.TimezoneID == 0 {
		c.TimezoneID = DefaultTimezoneID
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = defaultListTimeout
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = defaultReportTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
}
