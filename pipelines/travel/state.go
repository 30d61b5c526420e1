package travel

import (
	"github.com/BaSui01/stategraph/workflow"
)

// GraphName is the compiled graph's name, used in run history and metrics.
const GraphName = "travel"

// Node names, in execution order.
const (
	NodeExtractInfo     = "extract_info_with_ai"
	NodeAskMissingInfo  = "ask_missing_info"
	NodeFetchWeather    = "fetch_weather"
	NodeFetchAttraction = "fetch_attractions"
	NodeEstimateHotel   = "estimate_hotel_cost"
	NodeConvertCurrency = "convert_currency"
	NodeItinerary       = "generate_itinerary"
	NodeSummary         = "generate_summary"
)

// Placeholders written when a step cannot produce real data.
const (
	WeatherUnavailable   = "Weather data unavailable."
	ItineraryUnavailable = "Itinerary could not be generated due to missing attraction data."
	SummaryFailed        = "Summary generation failed. Please try again."
)

// State fields.
var (
	UserQuery    = workflow.NewField[string]("user_query")
	City         = workflow.NewField[string]("city")
	StartDate    = workflow.NewField[string]("start_date")
	EndDate      = workflow.NewField[string]("end_date")
	Currency     = workflow.NewField[string]("currency")
	Weather      = workflow.NewField[string]("weather")
	Attractions  = workflow.NewField[[]string]("attractions")
	HotelCost    = workflow.NewField[float64]("hotel_cost")
	ExchangeRate = workflow.NewField[float64]("exchange_rate")
	TotalCost    = workflow.NewField[float64]("total_cost")
	Itinerary    = workflow.NewField[string]("itinerary")
	Summary      = workflow.NewField[string]("summary")
)

// derivedFields are the fields a run computes, in display order.
var derivedFields = []string{
	City.Name(), StartDate.Name(), EndDate.Name(), Currency.Name(),
	Weather.Name(), Attractions.Name(), HotelCost.Name(), ExchangeRate.Name(),
	TotalCost.Name(), Itinerary.Name(), Summary.Name(),
}

// NewInitialState returns a state holding the raw query with every derived
// field explicitly nil.
func NewInitialState(query string) workflow.State {
	s := UserQuery.Set(workflow.NewState(), query)
	for _, f := range derivedFields {
		s = s.With(f, nil)
	}
	return s
}

// Plan is a typed view over a finished travel state.
type Plan struct {
	City           string   `json:"city"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	Currency       string   `json:"currency"`
	Weather        string   `json:"weather"`
	Attractions    []string `json:"attractions"`
	HotelCost      float64  `json:"hotel_cost"`
	ExchangeRate   *float64 `json:"exchange_rate"`
	TotalCost      *float64 `json:"total_cost"`
	TargetCurrency string   `json:"target_currency"`
	Itinerary      string   `json:"itinerary"`
	Summary        string   `json:"summary"`
}

// PlanFromState reads a Plan out of s. Unset numeric fields stay nil.
func PlanFromState(s workflow.State, targetCurrency string) Plan {
	p := Plan{
		City:           City.GetOr(s, ""),
		StartDate:      StartDate.GetOr(s, ""),
		EndDate:        EndDate.GetOr(s, ""),
		Currency:       Currency.GetOr(s, ""),
		Weather:        Weather.GetOr(s, ""),
		Attractions:    Attractions.GetOr(s, nil),
		HotelCost:      HotelCost.GetOr(s, 0),
		TargetCurrency: targetCurrency,
		Itinerary:      Itinerary.GetOr(s, ""),
		Summary:        Summary.GetOr(s, ""),
	}
	if v, ok := ExchangeRate.Get(s); ok {
		p.ExchangeRate = &v
	}
	if v, ok := TotalCost.Get(s); ok {
		p.TotalCost = &v
	}
	return p
}
