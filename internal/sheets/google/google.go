package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"

	applog "ledgerbook/internal/log"
	"ledgerbook/internal/resilience"
	ports "ledgerbook/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is used when Config.SheetName is empty.
const DefaultSheetName = "Ledger"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	breaker       *gobreaker.CircuitBreaker
	retry         resilience.RetryConfig
}

// Ensure interface conformance
var _ ports.RowWriter = (*Client)(nil)

// Config selects the target spreadsheet and how to authenticate.
// CredentialsJSON wins over CredentialsFile; when both are empty
// GOOGLE_APPLICATION_CREDENTIALS is consulted.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	// Retry bounds the attempts per write. The zero value takes
	// resilience.DefaultRetryConfig.
	Retry resilience.RetryConfig
}

// New creates a Sheets client authenticated with service account
// credentials. Extra options are passed to the Sheets service.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c := NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName)
	if cfg.Retry != (resilience.RetryConfig{}) {
		c.retry = cfg.Retry
	}
	return c, nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		breaker:       resilience.NewCircuitBreaker("google-sheets", resilience.BreakerConfig{}),
		retry:         resilience.DefaultRetryConfig(),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Options in extra replace credential lookup entirely (used with test endpoints).
func newSheetsService(ctx context.Context, cfg Config, extra ...goption.ClientOption) (*gsheet.Service, error) {
	if len(extra) > 0 {
		return gsheet.NewService(ctx, extra...)
	}

	credsJSON := strings.TrimSpace(cfg.CredentialsJSON)
	credsFile := strings.TrimSpace(cfg.CredentialsFile)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentials []byte
	switch {
	case credsJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentials = []byte(credsJSON)
	case credsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", credsFile)
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// ReplaceRows clears the columns spanned by header and rewrites them from A1.
// Failed attempts are retried with backoff until the breaker opens or the
// API rejects the request itself.
func (c *Client) ReplaceRows(ctx context.Context, header []string, rows [][]string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, toInterfaces(header))
	for _, r := range rows {
		values = append(values, toInterfaces(r))
	}

	err := resilience.RetryWithBackoff(ctx, c.retry, retryable, func() error {
		return resilience.Call(c.breaker, func() error {
			return c.rewrite(ctx, len(header), values)
		})
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Sheet rewritten",
		applog.FieldComponent, applog.ComponentSheets,
		"sheet", c.sheetName,
		"rows", len(rows))
	return nil
}

func (c *Client) rewrite(ctx context.Context, columns int, values [][]interface{}) error {
	clearRange := fmt.Sprintf("%s!A:%s", c.sheetName, column(columns))
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.sheetName+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", c.sheetName, err)
	}
	return nil
}

// retryable rejects open-breaker errors and client errors other than 429.
func retryable(err error) bool {
	if errors.Is(err, resilience.ErrOpen) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// column returns the A1 letter of the n-th column (1-based), at least "A".
func column(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
