package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/storage"
	"pricewatch/internal/tracking"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
		Storage: config.StorageConfig{
			Driver: "file",
			File:   config.FileStoreConfig{Path: filepath.Join(t.TempDir(), "products.json")},
		},
		Browser:  config.BrowserConfig{Engine: "http", RenderTimeout: time.Second},
		Alerting: config.AlertingConfig{Enabled: true, CurrencySymbol: "₹"},
	}
	return NewApp(cfg, zerolog.Nop())
}

func seed(t *testing.T, a *App, items ...tracking.Item) {
	t.Helper()
	require.NoError(t, storage.NewFileStore(a.Config.Storage.File.Path).Save(context.Background(), items))
}

func item(id, title string, desired, current int64) tracking.Item {
	return tracking.Item{
		ID: id, URL: "https://www.amazon.in/dp/" + id, Title: title, Mode: tracking.ModeFixed,
		DesiredValue: decimal.NewFromInt(desired), DesiredPrice: decimal.NewFromInt(desired),
		InitialPrice: decimal.NewFromInt(current), CurrentPrice: decimal.NewFromInt(current),
		LastChecked: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestListPrintsItems(t *testing.T) {
	a := testApp(t)
	seed(t, a, item("1", "Kettle", 1000, 1200))

	var out bytes.Buffer
	require.NoError(t, a.List(context.Background(), &out))
	assert.Contains(t, out.String(), "Kettle")
	assert.Contains(t, out.String(), "₹1000.00")
	assert.Contains(t, out.String(), "₹1200.00")
}

func TestListEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, testApp(t).List(context.Background(), &out))
	assert.Equal(t, "no items tracked\n", out.String())
}

func TestExportWritesCSVAndPNG(t *testing.T) {
	a := testApp(t)
	seed(t, a, item("1", "Kettle", 1000, 1200), item("2", "Toaster", 500, 450))

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "items.csv")
	pngPath := filepath.Join(dir, "out", "items.png")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "pct_of_target", rows[0][10])
	assert.Equal(t, "120.00", rows[1][10])
	assert.Equal(t, "90.00", rows[2][10])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExportOnTargetOnly(t *testing.T) {
	a := testApp(t)
	seed(t, a, item("1", "Kettle", 1000, 1200), item("2", "Toaster", 500, 450))

	csvPath := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, OnTargetOnly: true}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1][0])
}

func TestExportNeedsAnOutput(t *testing.T) {
	assert.Error(t, testApp(t).Export(context.Background(), ExportOptions{}))
}

func TestMigrateFileToSQLite(t *testing.T) {
	a := testApp(t)
	legacy := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, storage.NewFileStore(legacy).Save(context.Background(), []tracking.Item{item("1", "Kettle", 1000, 1200)}))

	a.Config.Storage = config.StorageConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "pw.db")}}
	require.NoError(t, a.Migrate(context.Background(), MigrateOptions{FromDriver: "file", FromPath: legacy}))

	dst, err := storage.OpenSQLite(context.Background(), a.Config.Storage.SQLite.Path)
	require.NoError(t, err)
	defer dst.Close()
	items, err := dst.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kettle", items[0].Title)
}

func TestMigrateRejectsSameStore(t *testing.T) {
	a := testApp(t)
	err := a.Migrate(context.Background(), MigrateOptions{FromDriver: "file", FromPath: a.Config.Storage.File.Path})
	assert.Error(t, err)
}

func TestMergeItems(t *testing.T) {
	dst := []tracking.Item{item("1", "old", 1, 2), item("2", "keep", 1, 2)}
	src := []tracking.Item{item("3", "new", 1, 2), item("1", "replaced", 1, 2)}

	got := mergeItems(dst, src)
	require.Len(t, got, 3)
	assert.Equal(t, "replaced", got[0].Title)
	assert.Equal(t, "keep", got[1].Title)
	assert.Equal(t, "new", got[2].Title)
}

func TestNewRegistryAddsConfiguredSites(t *testing.T) {
	a := testApp(t)
	a.Config.Sites = []config.SiteConfig{{
		HostContains: "shop.example", TitleSelectors: []string{"h1"}, PriceSelectors: []string{".price"},
		ReadySelector: "h1", ReadyWait: time.Second,
	}}
	reg := a.newRegistry()
	s, ok := reg.Resolve("www.shop.example")
	require.True(t, ok)
	assert.Equal(t, "shop.example", s.Name)
	require.NotNil(t, s.Ready)
	assert.Equal(t, []string{"shop.example", "amazon", "flipkart"}, reg.Sites())
}

func TestNewNotifierFallsBackToLog(t *testing.T) {
	a := testApp(t)
	n, closer, err := a.newNotifier()
	require.NoError(t, err)
	defer closer()
	assert.NotNil(t, n)

	a.Config.Alerting.Enabled = false
	n, closer, err = a.newNotifier()
	require.NoError(t, err)
	defer closer()
	assert.Nil(t, n)
}
