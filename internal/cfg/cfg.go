package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config adds geowatch-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	DatabaseURL           string
	UserWebhookURL        string
	OperatorWebhookURL    string
	SeedDemo              bool
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = auth disabled)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.UserWebhookURL, "user-webhook-url", "", "webhook URL for user breach notifications (empty = disabled)")
	fs.StringVar(&c.OperatorWebhookURL, "operator-webhook-url", "", "webhook URL for operator escalations (empty = disabled)")
	fs.BoolVar(&c.SeedDemo, "seed-demo-geofences", false, "seed demo geofences into the in-memory store on startup")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Webhook URLs, when set, must be http(s)
	if c.UserWebhookURL != "" && !isHTTPURL(c.UserWebhookURL) {
		errs = append(errs, fmt.Errorf("invalid USER_WEBHOOK_URL %q (must start with http:// or https://)", c.UserWebhookURL))
	}
	if c.OperatorWebhookURL != "" && !isHTTPURL(c.OperatorWebhookURL) {
		errs = append(errs, fmt.Errorf("invalid OPERATOR_WEBHOOK_URL %q (must start with http:// or https://)", c.OperatorWebhookURL))
	}

	// Demo seeding only makes sense against the in-memory store
	if c.SeedDemo && c.DatabaseURL != "" {
		errs = append(errs, errors.New("SEED_DEMO_GEOFENCES requires the in-memory store (unset DATABASE_URL)"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
