// Package sheets persists meals and daily reports to a Google
// spreadsheet. One row per committed meal on the meals sheet, one row
// per day on the reports sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gsheets "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/platewise/platewise/types"
)

const (
	// DefaultMealsSheet is the per-meal log sheet name.
	DefaultMealsSheet = "Meals"
	// DefaultReportsSheet is the daily summary sheet name.
	DefaultReportsSheet = "Daily_Reports"
)

// Values is the slice of the spreadsheet API the store uses.
type Values interface {
	Append(ctx context.Context, rangeA1 string, rows [][]any) error
	Get(ctx context.Context, rangeA1 string) ([][]any, error)
}

// googleValues implements Values against the Sheets API.
type googleValues struct {
	service       *gsheets.Service
	spreadsheetID string
}

// NewValues builds a Values backed by the Google Sheets API using
// service-account credentials JSON.
func NewValues(ctx context.Context, spreadsheetID string, credentialsJSON []byte) (Values, error) {
	if spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	service, err := gsheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &googleValues{service: service, spreadsheetID: spreadsheetID}, nil
}

func (g *googleValues) Append(ctx context.Context, rangeA1 string, rows [][]any) error {
	_, err := g.service.Spreadsheets.Values.
		Append(g.spreadsheetID, rangeA1, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: append %s: %w", rangeA1, err)
	}
	return nil
}

func (g *googleValues) Get(ctx context.Context, rangeA1 string) ([][]any, error) {
	resp, err := g.service.Spreadsheets.Values.
		Get(g.spreadsheetID, rangeA1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get %s: %w", rangeA1, err)
	}
	return resp.Values, nil
}

// Config wires a Store.
type Config struct {
	// Values is the spreadsheet backend (required).
	Values Values
	// MealsSheet overrides the meals sheet name.
	MealsSheet string
	// ReportsSheet overrides the reports sheet name.
	ReportsSheet string
	// Location is the timezone for row timestamps (required).
	Location *time.Location
}

// Store writes meal and report rows.
//
// Meal row layout (A:F): timestamp, item list, calories, protein,
// carbs, fat. Report row layout (A:E): date, calories, protein,
// carbs, fat. The reporter reads these columns back positionally, so
// the layouts are load-bearing.
type Store struct {
	config Config

	now func() time.Time
}

// NewStore validates the wiring and creates a Store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Values == nil {
		return nil, errors.New("sheets: store requires a values backend")
	}
	if cfg.Location == nil {
		return nil, errors.New("sheets: store requires a timezone")
	}
	if cfg.MealsSheet == "" {
		cfg.MealsSheet = DefaultMealsSheet
	}
	if cfg.ReportsSheet == "" {
		cfg.ReportsSheet = DefaultReportsSheet
	}
	return &Store{config: cfg, now: time.Now}, nil
}

// Append writes one meal row. Satisfies the pipeline sink.
func (s *Store) Append(ctx context.Context, _ types.MealJob, items []types.ResolvedNutrition, summary *types.MealSummary) error {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.ItemName)
	}
	row := []any{
		s.now().In(s.config.Location).Format("2006-01-02 15:04:05"),
		strings.Join(names, ", "),
		round2(summary.Totals.Calories),
		round2(summary.Totals.Protein),
		round2(summary.Totals.Carbs),
		round2(summary.Totals.Fat),
	}
	return s.config.Values.Append(ctx, s.config.MealsSheet+"!A:F", [][]any{row})
}

// MealRows returns every row of the meals sheet, header included.
func (s *Store) MealRows(ctx context.Context) ([][]any, error) {
	return s.config.Values.Get(ctx, s.config.MealsSheet+"!A:F")
}

// AppendDailyReport writes one daily summary row.
func (s *Store) AppendDailyReport(ctx context.Context, day string, totals types.Macros) error {
	row := []any{
		day,
		round2(totals.Calories),
		round2(totals.Protein),
		round2(totals.Carbs),
		round2(totals.Fat),
	}
	return s.config.Values.Append(ctx, s.config.ReportsSheet+"!A:E", [][]any{row})
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
