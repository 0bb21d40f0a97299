package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/platewise/platewise/types"
)

type fakeStore struct {
	rows    [][]any
	readErr error
	reports [][]any
}

func (f *fakeStore) MealRows(context.Context) ([][]any, error) {
	return f.rows, f.readErr
}

func (f *fakeStore) AppendDailyReport(_ context.Context, day string, totals types.Macros) error {
	f.reports = append(f.reports, []any{day, totals})
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) SendMessage(_ context.Context, _ string, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func newReporter(t *testing.T, store *fakeStore, notifier *fakeNotifier) *Reporter {
	t.Helper()
	r, err := NewReporter(Config{
		Store:    store,
		Notifier: notifier,
		ChatID:   "chat-1",
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	r.now = func() time.Time {
		return time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	}
	return r
}

func row(ts string, cal, prot, carbs, fat string) []any {
	return []any{ts, "some items", cal, prot, carbs, fat}
}

func TestRunSumsToday(t *testing.T) {
	store := &fakeStore{rows: [][]any{
		{"Timestamp", "Items", "Calories", "Protein", "Carbs", "Fat"},
		row("2026-03-14 08:00:00", "400", "20", "50", "10"),
		row("2026-03-13 20:00:00", "900", "40", "80", "30"), // yesterday
		row("2026-03-14 13:15:00", "600", "35", "60", "20"),
	}}
	notifier := &fakeNotifier{}
	r := newReporter(t, store, notifier)

	if err := r.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(store.reports))
	}
	if store.reports[0][0] != "2026-03-14" {
		t.Errorf("report day = %v", store.reports[0][0])
	}
	totals := store.reports[0][1].(types.Macros)
	if totals.Calories != 1000 || totals.Protein != 55 {
		t.Errorf("totals = %+v", totals)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "2 meals") {
		t.Errorf("messages = %q", notifier.messages)
	}
}

func TestRunSkipsUnparseableRows(t *testing.T) {
	store := &fakeStore{rows: [][]any{
		{"Timestamp"},
		row("2026-03-14 08:00:00", "400", "20", "50", "10"),
		{"2026-03-14 09:00:00", "broken"}, // short row
		row("2026-03-14 10:00:00", "not-a-number", "1", "1", "1"),
		{},
	}}
	notifier := &fakeNotifier{}
	r := newReporter(t, store, notifier)

	if err := r.Run(t.Context()); err != nil {
		t.Fatalf("bad rows must not fail the report: %v", err)
	}
	totals := store.reports[0][1].(types.Macros)
	if totals.Calories != 400 {
		t.Errorf("Calories = %v, want the one clean row", totals.Calories)
	}
}

func TestRunEmptyLog(t *testing.T) {
	store := &fakeStore{rows: [][]any{{"Timestamp", "Items"}}}
	notifier := &fakeNotifier{}
	r := newReporter(t, store, notifier)

	if err := r.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.reports) != 0 {
		t.Error("no report row for an empty day")
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "No meals") {
		t.Errorf("messages = %q", notifier.messages)
	}
}

func TestRunReadFailure(t *testing.T) {
	store := &fakeStore{readErr: errors.New("api: 503")}
	r := newReporter(t, store, &fakeNotifier{})

	if err := r.Run(t.Context()); err == nil {
		t.Fatal("expected error when the meal log is unreadable")
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		cell    any
		want    float64
		wantErr bool
	}{
		{"508.13", 508.13, false},
		{" 42 ", 42, false},
		{508.13, 508.13, false},
		{7, 7, false},
		{"abc", 0, true},
		{nil, 0, true},
	}
	for _, tt := range tests {
		got, err := toFloat(tt.cell)
		if (err != nil) != tt.wantErr {
			t.Errorf("toFloat(%v) error = %v", tt.cell, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("toFloat(%v) = %v, want %v", tt.cell, got, tt.want)
		}
	}
}
