package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultWeatherURL is the OpenWeatherMap 5-day forecast endpoint.
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/forecast"

// Forecast is one 3-hourly forecast slot.
type Forecast struct {
	Time        string
	TempC       float64
	Description string
}

// String renders the slot as "<time>: <temp>°C, <description>".
func (f Forecast) String() string {
	return fmt.Sprintf("%s: %g°C, %s", f.Time, f.TempC, f.Description)
}

type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// WeatherClient reads city forecasts.
type WeatherClient struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
}

// NewWeatherClient creates a client; an empty baseURL selects DefaultWeatherURL.
func NewWeatherClient(f *Fetcher, baseURL, apiKey string) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	return &WeatherClient{fetcher: f, baseURL: baseURL, apiKey: apiKey}
}

// Forecast returns up to limit metric forecast slots for city. Slots missing
// a temperature are skipped; an empty list yields ErrNoData.
func (c *WeatherClient) Forecast(ctx context.Context, city string, limit int) ([]Forecast, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, &FetchError{Source: "weather", Err: fmt.Errorf("city is required")}
	}
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	var resp forecastResponse
	if err := c.fetcher.GetJSON(ctx, "weather", c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]Forecast, 0, limit)
	for _, item := range resp.List {
		if len(out) == limit {
			break
		}
		if item.Main.Temp == nil || item.DtTxt == "" {
			continue
		}
		f := Forecast{Time: item.DtTxt, TempC: *item.Main.Temp}
		if len(item.Weather) > 0 {
			f.Description = item.Weather[0].Description
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, &FetchError{Source: "weather", Err: ErrNoData}
	}
	return out, nil
}
