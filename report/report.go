// Package report generates the daily nutrition summary: it reads the
// meal log back from the spreadsheet, sums the rows for the current
// day, appends a report row, and notifies the configured chat.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/telegram"
	"github.com/platewise/platewise/types"
)

// Store reads the meal log and writes report rows.
type Store interface {
	MealRows(ctx context.Context) ([][]any, error)
	AppendDailyReport(ctx context.Context, day string, totals types.Macros) error
}

// Notifier delivers the report message.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Config wires a Reporter.
type Config struct {
	// Store is the spreadsheet backend (required).
	Store Store
	// Notifier delivers the report (required).
	Notifier Notifier
	// ChatID receives the report (required).
	ChatID string
	// Location determines which rows count as "today" (required).
	Location *time.Location
	// Logger is the process logger. Optional.
	Logger *log.Logger
}

// Reporter produces one daily summary per run.
type Reporter struct {
	config Config

	now func() time.Time
}

// NewReporter validates the wiring and creates a Reporter.
func NewReporter(cfg Config) (*Reporter, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("reporter requires a store")
	case cfg.Notifier == nil:
		return nil, errors.New("reporter requires a notifier")
	case cfg.ChatID == "":
		return nil, errors.New("reporter requires a chat id")
	case cfg.Location == nil:
		return nil, errors.New("reporter requires a timezone")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewProcessLogger("report")
	}
	return &Reporter{config: cfg, now: time.Now}, nil
}

// Run generates and delivers today's report. An empty or header-only
// meal log produces a "no meals" notification and no report row.
// Unparseable rows are skipped with a warning, not fatal.
func (r *Reporter) Run(ctx context.Context) error {
	day := r.now().In(r.config.Location).Format("2006-01-02")
	logger := r.config.Logger

	rows, err := r.config.Store.MealRows(ctx)
	if err != nil {
		return fmt.Errorf("read meal log: %w", err)
	}

	totals, meals := sumDay(rows, day, logger)
	logger.Info("daily totals computed", map[string]any{
		"day":      day,
		"meals":    meals,
		"calories": totals.Calories,
	})

	if meals == 0 {
		return r.config.Notifier.SendMessage(ctx, r.config.ChatID,
			telegram.FormatDailyReport(day, totals, 0))
	}

	if err := r.config.Store.AppendDailyReport(ctx, day, totals); err != nil {
		return fmt.Errorf("append report row: %w", err)
	}
	if err := r.config.Notifier.SendMessage(ctx, r.config.ChatID,
		telegram.FormatDailyReport(day, totals, meals)); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	return nil
}

// sumDay folds meal rows matching the given day. The first row is the
// header. Row layout: timestamp, items, calories, protein, carbs, fat.
func sumDay(rows [][]any, day string, logger *log.Logger) (types.Macros, int) {
	var totals types.Macros
	meals := 0

	if len(rows) <= 1 {
		return totals, 0
	}
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		ts, ok := row[0].(string)
		if !ok || !strings.HasPrefix(ts, day) {
			continue
		}
		m, err := parseRow(row)
		if err != nil {
			logger.Warn("skipping unparseable meal row", map[string]any{
				"row":   fmt.Sprintf("%v", row),
				"error": err.Error(),
			})
			continue
		}
		totals = totals.Add(m)
		meals++
	}
	return totals, meals
}

func parseRow(row []any) (types.Macros, error) {
	if len(row) < 6 {
		return types.Macros{}, fmt.Errorf("expected 6 columns, got %d", len(row))
	}
	vals := make([]float64, 4)
	for i, cell := range row[2:6] {
		v, err := toFloat(cell)
		if err != nil {
			return types.Macros{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}
	return types.Macros{Calories: vals[0], Protein: vals[1], Carbs: vals[2], Fat: vals[3]}, nil
}

// toFloat handles the cell types the spreadsheet API hands back.
func toFloat(cell any) (float64, error) {
	switch v := cell.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported cell type %T", cell)
	}
}
