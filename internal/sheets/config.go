// Package sheets publishes invoice reports to Google Sheets.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/invoice-report/internal/common"
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultSpreadsheetName is used when a new spreadsheet has to be created.
const DefaultSpreadsheetName = "Invoice Report"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		SpreadsheetName:  DefaultSpreadsheetName,
		TimeZone:         "America/New_York",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Check authentication
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: no authentication method configured", common.ErrMissingConfig)
	}

	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("multiple authentication methods configured; use either OAuth2 or service account")
	}

	// Validate batch size
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	// Validate retry settings
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}

	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	return nil
}
