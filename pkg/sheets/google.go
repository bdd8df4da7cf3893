package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// GoogleConfig selects the spreadsheet and credentials.
type GoogleConfig struct {
	SpreadsheetID   string
	Tab             string // empty means the first tab
	CredentialsFile string // service-account JSON; empty uses application default credentials
}

// GoogleStore talks to the Sheets v4 API.
type GoogleStore struct {
	srv    *sheetsapi.Service
	cfg    GoogleConfig
	logger *logx.Logger
}

// NewGoogle returns a Store for cfg. Without a spreadsheet id it returns
// Unconfigured so callers still get a working Store.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (Store, error) {
	if cfg.SpreadsheetID == "" {
		return Unconfigured{}, nil
	}
	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	srv, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &GoogleStore{srv: srv, cfg: cfg, logger: logx.NewLogger("sheets")}, nil
}

func (g *GoogleStore) rangeA1() string {
	if g.cfg.Tab == "" {
		return "A1:ZZ"
	}
	return fmt.Sprintf("'%s'!A1:ZZ", g.cfg.Tab)
}

// ReadAll fetches every used row.
func (g *GoogleStore) ReadAll(ctx context.Context) (Table, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(g.cfg.SpreadsheetID, g.rangeA1()).Context(ctx).Do()
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", g.cfg.SpreadsheetID, err)
	}
	t := FromValues(resp.Values)
	g.logger.Info("read %d rows x %d columns", len(t.Rows), len(t.Header))
	return t, nil
}

// Append writes row below the last used row.
func (g *GoogleStore) Append(ctx context.Context, row []string) error {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err := g.srv.Spreadsheets.Values.
		Append(g.cfg.SpreadsheetID, g.rangeA1(), &sheetsapi.ValueRange{Values: [][]any{values}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", g.cfg.SpreadsheetID, err)
	}
	return nil
}

// URL links to the spreadsheet.
func (g *GoogleStore) URL() string {
	return "https://docs.google.com/spreadsheets/d/" + g.cfg.SpreadsheetID
}

// Unconfigured is the Store used when no spreadsheet id is set.
type Unconfigured struct{}

func (Unconfigured) ReadAll(context.Context) (Table, error) { return Table{}, ErrNotConfigured }
func (Unconfigured) Append(context.Context, []string) error { return ErrNotConfigured }
func (Unconfigured) URL() string                            { return "" }
