package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/testutil"
	"github.com/BaSui01/stategraph/testutil/fixtures"
)

// testEnv 是一套指向本地 fixture 服务的配置
type testEnv struct {
	api    *fixtures.APIServer
	dir    string
	config string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	api := fixtures.NewAPIServer(t)
	dir := t.TempDir()

	yaml := fmt.Sprintf(`
log:
  level: error
  format: json
  output_paths: ["%[2]s/stategraph.log"]
llm:
  provider: groq
  base_url: %[1]s/llm
  max_retries: 0
  circuit_breaker: false
sources:
  weather: {base_url: "%[1]s/weather", api_key: test}
  places: {base_url: "%[1]s/places", api_key: test}
  exchange: {base_url: "%[1]s/exchange", api_key: test}
  max_retries: 0
research:
  llm:
    provider: gemini
    base_url: %[1]s/llm
    max_retries: 0
  output_dir: %[2]s/reports
history:
  backend: sql
  driver: sqlite
  dsn: %[2]s/runs.db
`, api.URL(""), dir)

	path := filepath.Join(dir, "stategraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return &testEnv{api: api, dir: dir, config: path}
}

// run 以全新的 app 执行一次命令
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp(&out, strings.NewReader(stdin))
	argv := append([]string{"stategraph", "--config", e.config}, args...)
	err := newRootCommand(a).Run(testutil.TestContext(t), argv)
	return out.String(), err
}

var runIDPattern = regexp.MustCompile(`Run ([0-9a-f-]{36})`)

func TestCLI_PlanThenHistory(t *testing.T) {
	env := newTestEnv(t)
	env.api.QueueChat(fixtures.TripInfoReply, fixtures.SummaryReply)

	out, err := env.run(t, "", "plan", "--non-interactive", "--query", "Paris, July 15 to 20")
	require.NoError(t, err)

	assert.Contains(t, out, "City:       Paris")
	assert.Contains(t, out, "Dates:      2025-07-15 to 2025-07-20")
	assert.Contains(t, out, "Hotel cost: 500.00")
	assert.Contains(t, out, "Total:      41750.00 INR")
	assert.Contains(t, out, "Day 1: Visit Eiffel Tower")
	assert.NotContains(t, out, "<think>")
	assert.NotContains(t, out, "degraded")

	m := runIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	runID := m[1]

	out, err = env.run(t, "", "history", "list", "--workflow", "travel")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "completed")

	out, err = env.run(t, "", "history", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow: travel")
	assert.Contains(t, out, "Path:     extract_info_with_ai -> ask_missing_info -> fetch_weather")
	assert.Contains(t, out, "hotel_cost: 500")

	out, err = env.run(t, "", "history", "delete", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run "+runID)

	_, err = env.run(t, "", "history", "show", runID)
	assert.Error(t, err)
}

func TestCLI_PlanInteractive(t *testing.T) {
	env := newTestEnv(t)
	env.api.QueueChat(`{"city": null, "start_date": null, "end_date": null, "currency": null}`, "Enjoy Rome.")

	stdin := "I want a holiday\nParis\n2025-07-15\n2025-07-18\n"
	out, err := env.run(t, stdin, "plan")
	require.NoError(t, err)

	assert.Contains(t, out, "Enter your travel query: ")
	assert.Contains(t, out, "Please enter city: ")
	assert.Contains(t, out, "Please enter start date (YYYY-MM-DD): ")
	assert.Contains(t, out, "City:       Paris")
	assert.Contains(t, out, "Hotel cost: 300.00")
}

func TestCLI_PlanNonInteractiveNeedsQuery(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "plan", "--non-interactive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--query")
}

func TestCLI_Research(t *testing.T) {
	env := newTestEnv(t)
	env.api.QueueChat("<think>hmm</think>Metformin remains first line.", "Metformin is first line.")

	out, err := env.run(t, "", "research", "--query", "What are the latest treatments for type 2 diabetes?")
	require.NoError(t, err)

	assert.Contains(t, out, "Topic: medical")
	assert.Contains(t, out, "[Medical Research] Metformin remains first line.")
	assert.Contains(t, out, "[Document Saved] Summary saved to "+filepath.Join(env.dir, "reports"))

	files, err := os.ReadDir(filepath.Join(env.dir, "reports"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCLI_Product(t *testing.T) {
	env := newTestEnv(t)
	env.api.QueueChat(`{"product_name": "Kettle", "tentative_price_in_usd": "$1,299.99", "rating": 4.5}`)

	out, err := env.run(t, "", "--metrics-addr", "127.0.0.1:0", "product", "--text", "A kettle for $1,299.99")
	require.NoError(t, err)

	assert.Contains(t, out, "Name:        Kettle")
	assert.Contains(t, out, "Price (USD): 1299.99")
	assert.Contains(t, out, "Rating:      4.5")
}

func TestCLI_Graph(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "graph", "--workflow", "research")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart TD"))
	assert.Contains(t, out, "Supervisor -.->|medical| MedicalResearch")

	out, err = env.run(t, "", "graph", "--workflow", "product")
	require.NoError(t, err)
	assert.Contains(t, out, "extract_product --> normalize_price")

	_, err = env.run(t, "", "graph", "--workflow", "weather")
	assert.Error(t, err)
}

func TestCLI_Health(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "history       OK")
	assert.Contains(t, out, "llm           OK")
	assert.Contains(t, out, "research_llm  OK")
}

func TestCLI_HealthPrintsStoreStats(t *testing.T) {
	env := newTestEnv(t)
	env.api.QueueChat(fixtures.TripInfoReply, fixtures.SummaryReply)

	_, err := env.run(t, "", "plan", "--non-interactive", "--query", "Paris, July 15 to 20")
	require.NoError(t, err)

	out, err := env.run(t, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "history: backend=sql runs=1")
	assert.Contains(t, out, "max_open=1")
	assert.Contains(t, out, "healthy=true")
	assert.NotContains(t, out, "cache:")
}

func TestCLI_HealthWithRedisHistory(t *testing.T) {
	env := newTestEnv(t)
	mr := miniredis.RunT(t)
	t.Setenv("STATEGRAPH_CACHE_ENABLED", "true")
	t.Setenv("STATEGRAPH_CACHE_ADDR", mr.Addr())
	t.Setenv("STATEGRAPH_HISTORY_BACKEND", "redis")
	env.api.QueueChat(fixtures.TripInfoReply, fixtures.SummaryReply)

	_, err := env.run(t, "", "plan", "--non-interactive", "--query", "Paris, July 15 to 20")
	require.NoError(t, err)

	out, err := env.run(t, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "cache         OK")
	assert.Contains(t, out, "history: backend=redis runs=1")
	assert.Regexp(t, `cache: +keys=[1-9]`, out)
}

func TestCLI_HealthReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	env.api.Close()

	out, err := env.run(t, "", "health")
	require.Error(t, err)
	assert.Contains(t, out, "llm           FAIL")
	assert.Contains(t, out, "history       OK")
}

func TestCLI_Version(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stategraph dev")
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"error", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := config.DefaultLogConfig()
			cfg.Level = tt.level
			cfg.Format = "json"
			cfg.OutputPaths = []string{filepath.Join(t.TempDir(), "out.log")}
			logger := initLogger(cfg)
			assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.warn, logger.Core().Enabled(zapcore.WarnLevel))
		})
	}
}

func TestTerminalInput(t *testing.T) {
	var out bytes.Buffer
	in := newTerminalInput(strings.NewReader("Rome\n\n2025-08-01"), &out)
	ctx := testutil.TestContext(t)

	v, err := in.PromptForMissing(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, "Rome", v)

	_, err = in.PromptForMissing(ctx, "start_date")
	assert.Error(t, err)

	v, err = in.PromptForMissing(ctx, "end_date")
	require.NoError(t, err)
	assert.Equal(t, "2025-08-01", v)

	_, err = in.PromptForMissing(ctx, "currency")
	assert.Error(t, err)

	assert.Equal(t,
		"Please enter city: Please enter start date (YYYY-MM-DD): Please enter end date (YYYY-MM-DD): Please enter currency: ",
		out.String())

	_, err = in.PromptForMissing(testutil.CancelledContext(), "city")
	assert.ErrorIs(t, err, context.Canceled)
}
