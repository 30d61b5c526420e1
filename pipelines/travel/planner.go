// Package travel builds the trip planning workflow: extract the trip from a
// free-text request, fill gaps from the user, gather weather, attractions and
// exchange rates, then price and summarise the trip.
package travel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/llm/structured"
	"github.com/BaSui01/stategraph/pipelines"
	"github.com/BaSui01/stategraph/sources"
	"github.com/BaSui01/stategraph/workflow"
	"go.uber.org/zap"
)

// Extractor turns free text into a schema-conforming struct.
type Extractor interface {
	Extract(ctx context.Context, rawText string, schema structured.Schema, out any) error
}

// Generator produces free text with any reasoning block already removed.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// WeatherSource returns forecast slots for a city.
type WeatherSource interface {
	Forecast(ctx context.Context, city string, limit int) ([]sources.Forecast, error)
}

// PlacesSource returns attraction names for a city.
type PlacesSource interface {
	TopAttractions(ctx context.Context, city string, limit int) ([]string, error)
}

// RateSource returns currency conversion rates.
type RateSource interface {
	Rate(ctx context.Context, base, target string) (float64, error)
}

// Deps are the external collaborators of the travel graph. All are required.
type Deps struct {
	Extractor Extractor
	Generator Generator
	Weather   WeatherSource
	Places    PlacesSource
	Rates     RateSource
}

func (d Deps) validate() error {
	var missing []string
	if d.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if d.Generator == nil {
		missing = append(missing, "generator")
	}
	if d.Weather == nil {
		missing = append(missing, "weather")
	}
	if d.Places == nil {
		missing = append(missing, "places")
	}
	if d.Rates == nil {
		missing = append(missing, "rates")
	}
	if len(missing) > 0 {
		return fmt.Errorf("travel: missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Config tunes cost estimation and source limits.
type Config struct {
	NightlyRate    float64
	DefaultNights  int
	BaseCurrency   string
	TargetCurrency string
	ForecastSlots  int
	MaxAttractions int
}

// DefaultConfig mirrors config.DefaultTravelConfig and the source defaults.
func DefaultConfig() Config {
	return Config{
		NightlyRate:    100,
		DefaultNights:  5,
		BaseCurrency:   "USD",
		TargetCurrency: "INR",
		ForecastSlots:  5,
		MaxAttractions: 5,
	}
}

// ConfigFrom builds a Config from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		NightlyRate:    cfg.Travel.NightlyRate,
		DefaultNights:  cfg.Travel.DefaultNights,
		BaseCurrency:   cfg.Travel.BaseCurrency,
		TargetCurrency: cfg.Travel.TargetCurrency,
		ForecastSlots:  cfg.Sources.ForecastSlots,
		MaxAttractions: cfg.Sources.MaxAttractions,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.NightlyRate <= 0 {
		c.NightlyRate = def.NightlyRate
	}
	if c.DefaultNights <= 0 {
		c.DefaultNights = def.DefaultNights
	}
	if c.BaseCurrency == "" {
		c.BaseCurrency = def.BaseCurrency
	}
	if c.TargetCurrency == "" {
		c.TargetCurrency = def.TargetCurrency
	}
	if c.ForecastSlots <= 0 {
		c.ForecastSlots = def.ForecastSlots
	}
	if c.MaxAttractions <= 0 {
		c.MaxAttractions = def.MaxAttractions
	}
	c.BaseCurrency = strings.ToUpper(c.BaseCurrency)
	c.TargetCurrency = strings.ToUpper(c.TargetCurrency)
	return c
}

// NewGraph compiles the eight-step travel graph.
func NewGraph(deps Deps, cfg Config, opts pipelines.Options) (*workflow.CompiledGraph, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	n := &nodes{deps: deps, cfg: cfg.withDefaults()}

	g := opts.Apply(workflow.NewStateGraph(GraphName)).
		AddNodeFunc(NodeExtractInfo, n.extractInfo).
		AddNodeFunc(NodeAskMissingInfo, n.askMissingInfo).
		AddNodeFunc(NodeFetchWeather, n.fetchWeather).
		AddNodeFunc(NodeFetchAttraction, n.fetchAttractions).
		AddNodeFunc(NodeEstimateHotel, n.estimateHotelCost).
		AddNodeFunc(NodeConvertCurrency, n.convertCurrency).
		AddNodeFunc(NodeItinerary, n.generateItinerary).
		AddNodeFunc(NodeSummary, n.generateSummary).
		SetEntry(NodeExtractInfo).
		AddEdge(NodeExtractInfo, NodeAskMissingInfo).
		AddEdge(NodeAskMissingInfo, NodeFetchWeather).
		AddEdge(NodeFetchWeather, NodeFetchAttraction).
		AddEdge(NodeFetchAttraction, NodeEstimateHotel).
		AddEdge(NodeEstimateHotel, NodeConvertCurrency).
		AddEdge(NodeConvertCurrency, NodeItinerary).
		AddEdge(NodeItinerary, NodeSummary).
		AddEdge(NodeSummary, workflow.END)

	return g.Compile()
}

// Planner runs the travel graph and returns typed plans.
type Planner struct {
	graph  *workflow.CompiledGraph
	target string
}

// NewPlanner compiles the graph once; the planner is safe for concurrent use.
func NewPlanner(deps Deps, cfg Config, opts pipelines.Options) (*Planner, error) {
	graph, err := NewGraph(deps, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Planner{graph: graph, target: cfg.withDefaults().TargetCurrency}, nil
}

// Graph returns the compiled graph.
func (p *Planner) Graph() *workflow.CompiledGraph { return p.graph }

// Plan runs one request. The result is returned even when err is non-nil so
// callers can record the partial history.
func (p *Planner) Plan(ctx context.Context, query string, opts ...workflow.RunOption) (Plan, *workflow.RunResult, error) {
	res, err := p.graph.Run(ctx, NewInitialState(query), opts...)
	return PlanFromState(res.State, p.target), res, err
}

// ============================================================================
// Nodes
// ============================================================================

type nodes struct {
	deps Deps
	cfg  Config
}

// TripInfo is the structured output of the extraction step.
type TripInfo struct {
	City      string `json:"city"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Currency  string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// TripInfoSchema is the JSON schema the extraction step asks for.
var TripInfoSchema = structured.Schema{
	Name: "trip request",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city":       map[string]any{"type": []any{"string", "null"}},
			"start_date": map[string]any{"type": []any{"string", "null"}, "description": "YYYY-MM-DD"},
			"end_date":   map[string]any{"type": []any{"string", "null"}, "description": "YYYY-MM-DD"},
			"currency":   map[string]any{"type": []any{"string", "null"}, "description": "ISO 4217 code"},
		},
		"required": []any{"city", "start_date", "end_date", "currency"},
	},
}

func (n *nodes) extractInfo(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	query := UserQuery.GetOr(s, "")
	delta := workflow.NewState()
	if strings.TrimSpace(query) == "" {
		return delta, nil
	}

	var info TripInfo
	if err := n.deps.Extractor.Extract(ctx, query, TripInfoSchema, &info); err != nil {
		rt.Log().Warn("trip extraction failed", zap.Error(err))
		return delta, fmt.Errorf("extract trip info: %w", err)
	}

	if v := strings.TrimSpace(info.City); v != "" {
		delta = City.Set(delta, v)
	}
	if v := strings.TrimSpace(info.StartDate); v != "" {
		delta = StartDate.Set(delta, v)
	}
	if v := strings.TrimSpace(info.EndDate); v != "" {
		delta = EndDate.Set(delta, v)
	}
	if v := strings.TrimSpace(info.Currency); v != "" {
		delta = Currency.Set(delta, strings.ToUpper(v))
	}
	return delta, nil
}

func (n *nodes) askMissingInfo(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	delta := workflow.NewState()
	for _, f := range []workflow.Field[string]{City, StartDate, EndDate} {
		if v, ok := f.Get(s); ok && strings.TrimSpace(v) != "" {
			continue
		}
		v, err := rt.Prompt(ctx, f.Name())
		if err != nil {
			rt.Log().Warn("missing field left unset", zap.String("field", f.Name()), zap.Error(err))
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			delta = f.Set(delta, v)
		}
	}
	return delta, nil
}

func (n *nodes) fetchWeather(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	city, ok := City.Get(s)
	if !ok || city == "" {
		return Weather.Set(workflow.NewState(), WeatherUnavailable), nil
	}

	slots, err := n.deps.Weather.Forecast(ctx, city, n.cfg.ForecastSlots)
	if err != nil {
		return Weather.Set(workflow.NewState(), WeatherUnavailable), fmt.Errorf("fetch weather: %w", err)
	}
	if len(slots) == 0 {
		rt.Log().Warn("no forecast entries", zap.String("city", city))
		return Weather.Set(workflow.NewState(), WeatherUnavailable), nil
	}
	lines := make([]string, 0, len(slots))
	for _, slot := range slots {
		lines = append(lines, slot.String())
	}
	return Weather.Set(workflow.NewState(), strings.Join(lines, "\n")), nil
}

func (n *nodes) fetchAttractions(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	city, ok := City.Get(s)
	if !ok || city == "" {
		return Attractions.Set(workflow.NewState(), []string{}), nil
	}

	places, err := n.deps.Places.TopAttractions(ctx, city, n.cfg.MaxAttractions)
	if errors.Is(err, sources.ErrNoData) {
		return Attractions.Set(workflow.NewState(), []string{}), nil
	}
	if err != nil {
		return Attractions.Set(workflow.NewState(), []string{}), fmt.Errorf("fetch attractions: %w", err)
	}
	if places == nil {
		places = []string{}
	}
	return Attractions.Set(workflow.NewState(), places), nil
}

func (n *nodes) estimateHotelCost(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	nights := Nights(StartDate.GetOr(s, ""), EndDate.GetOr(s, ""), n.cfg.DefaultNights)
	return HotelCost.Set(workflow.NewState(), n.cfg.NightlyRate*float64(nights)), nil
}

// Nights counts the nights between two YYYY-MM-DD dates. Missing, invalid
// or non-increasing dates yield def.
func Nights(start, end string, def int) int {
	from, err1 := time.Parse(time.DateOnly, strings.TrimSpace(start))
	to, err2 := time.Parse(time.DateOnly, strings.TrimSpace(end))
	if err1 != nil || err2 != nil || !to.After(from) {
		return def
	}
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func (n *nodes) convertCurrency(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	base := strings.ToUpper(strings.TrimSpace(Currency.GetOr(s, "")))
	if base == "" {
		base = n.cfg.BaseCurrency
	}

	rate, err := n.deps.Rates.Rate(ctx, base, n.cfg.TargetCurrency)
	if err != nil {
		delta := ExchangeRate.Clear(workflow.NewState())
		return TotalCost.Clear(delta), fmt.Errorf("convert %s to %s: %w", base, n.cfg.TargetCurrency, err)
	}

	delta := ExchangeRate.Set(workflow.NewState(), rate)
	if cost, ok := HotelCost.Get(s); ok {
		return TotalCost.Set(delta, cost*rate), nil
	}
	return TotalCost.Clear(delta), nil
}

func (n *nodes) generateItinerary(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	places := Attractions.GetOr(s, nil)
	if len(places) == 0 {
		return Itinerary.Set(workflow.NewState(), ItineraryUnavailable), nil
	}
	lines := make([]string, len(places))
	for i, p := range places {
		lines[i] = fmt.Sprintf("Day %d: Visit %s", i+1, p)
	}
	return Itinerary.Set(workflow.NewState(), strings.Join(lines, "\n")), nil
}

func (n *nodes) generateSummary(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	text, err := n.deps.Generator.Generate(ctx, n.summaryPrompt(s))
	if err != nil {
		return Summary.Set(workflow.NewState(), SummaryFailed), fmt.Errorf("generate summary: %w", err)
	}
	return Summary.Set(workflow.NewState(), text), nil
}

func (n *nodes) summaryPrompt(s workflow.State) string {
	orNA := func(f workflow.Field[string]) string { return f.GetOr(s, "N/A") }

	rate := "unavailable"
	if v, ok := ExchangeRate.Get(s); ok {
		rate = fmt.Sprintf("%g %s per %s", v, n.cfg.TargetCurrency, orDefault(Currency.GetOr(s, ""), n.cfg.BaseCurrency))
	}
	total := "unavailable"
	if v, ok := TotalCost.Get(s); ok {
		total = fmt.Sprintf("%.2f %s", v, n.cfg.TargetCurrency)
	}
	attractions := strings.Join(Attractions.GetOr(s, nil), ", ")
	if attractions == "" {
		attractions = "none found"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A traveller is planning a trip to %s from %s to %s.\n", orNA(City), orNA(StartDate), orNA(EndDate))
	fmt.Fprintf(&b, "Weather forecast:\n%s\n", Weather.GetOr(s, WeatherUnavailable))
	fmt.Fprintf(&b, "Top attractions: %s.\n", attractions)
	fmt.Fprintf(&b, "Estimated hotel cost: %.2f %s.\n", HotelCost.GetOr(s, 0), orDefault(Currency.GetOr(s, ""), n.cfg.BaseCurrency))
	fmt.Fprintf(&b, "Exchange rate: %s.\n", rate)
	fmt.Fprintf(&b, "Estimated total cost: %s.\n", total)
	fmt.Fprintf(&b, "Itinerary:\n%s\n\n", Itinerary.GetOr(s, ItineraryUnavailable))
	b.WriteString("Write a short, friendly summary of this trip in 100 to 120 words. Return only the summary.")
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
