// Package tools implements the planning tools exposed to the model: weather
// forecasts, calendar availability and web search.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/skyplanner/skyplanner/internal/agent"
)

const defaultWeatherBaseURL = "https://api.openweathermap.org"

// WeatherTool fetches a multi-day forecast from OpenWeatherMap's 5-day/3-hour
// endpoint and aggregates it into daily summaries.
type WeatherTool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewWeatherTool creates the weather tool with the given OpenWeatherMap key.
func NewWeatherTool(apiKey string) *WeatherTool {
	return &WeatherTool{
		apiKey:     apiKey,
		baseURL:    defaultWeatherBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *WeatherTool) Name() string { return "get_weather_forecast" }

func (t *WeatherTool) Description() string {
	return "Get the weather forecast for a city for the next few days. Returns daily summaries with temperature ranges, conditions, humidity and precipitation probability."
}

func (t *WeatherTool) Parameters() map[string]agent.Param {
	return map[string]agent.Param{
		"city": {
			Type:        "string",
			Description: "City name, optionally with country code (e.g. 'Seoul' or 'Seoul,KR')",
		},
		"days": {
			Type:        "integer",
			Description: "Number of days to forecast (1-5)",
			Default:     5,
		},
		"units": {
			Type:        "string",
			Description: "Unit system for temperatures",
			Enum:        []string{"metric", "imperial"},
			Default:     "metric",
		},
	}
}

// forecastResponse is the subset of the OpenWeatherMap forecast payload we
// consume.
type forecastResponse struct {
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if t.apiKey == "" {
		return map[string]any{
			"success": false,
			"error":   "weather service is not configured",
		}, nil
	}

	city, ok := agent.GetString(args, "city")
	if !ok || city == "" {
		return map[string]any{
			"success": false,
			"error":   "city is required",
		}, nil
	}
	days := agent.GetIntDefault(args, "days", 5)
	if days < 1 {
		days = 1
	}
	if days > 5 {
		days = 5
	}
	units := agent.GetStringDefault(args, "units", "metric")
	if units != "metric" && units != "imperial" {
		units = "metric"
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", t.apiKey)
	q.Set("units", units)
	q.Set("cnt", "40")

	reqURL := t.baseURL + "/data/2.5/forecast?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("City not found: %s", city),
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("weather API error (%d): %s", resp.StatusCode, string(body))
	}

	var forecast forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	daily := aggregateDaily(&forecast, days)

	tempUnit := "°C"
	if units == "imperial" {
		tempUnit = "°F"
	}
	return map[string]any{
		"success":          true,
		"city":             forecast.City.Name,
		"country":          forecast.City.Country,
		"temperature_unit": tempUnit,
		"daily_forecasts":  daily,
	}, nil
}

type dayStats struct {
	date        string
	tempMin     float64
	tempMax     float64
	tempSum     float64
	feelsMin    float64
	feelsMax    float64
	humiditySum float64
	popMax      float64
	count       int
	conditions  map[string]int
	descs       map[string]int
}

// aggregateDaily folds the 3-hourly forecast entries into per-day summaries.
func aggregateDaily(forecast *forecastResponse, days int) []map[string]any {
	byDate := make(map[string]*dayStats)
	var order []string

	for _, entry := range forecast.List {
		if len(entry.DtTxt) < 10 {
			continue
		}
		date := entry.DtTxt[:10]
		stats, ok := byDate[date]
		if !ok {
			stats = &dayStats{
				date:       date,
				tempMin:    entry.Main.Temp,
				tempMax:    entry.Main.Temp,
				feelsMin:   entry.Main.FeelsLike,
				feelsMax:   entry.Main.FeelsLike,
				conditions: make(map[string]int),
				descs:      make(map[string]int),
			}
			byDate[date] = stats
			order = append(order, date)
		}
		if entry.Main.Temp < stats.tempMin {
			stats.tempMin = entry.Main.Temp
		}
		if entry.Main.Temp > stats.tempMax {
			stats.tempMax = entry.Main.Temp
		}
		if entry.Main.FeelsLike < stats.feelsMin {
			stats.feelsMin = entry.Main.FeelsLike
		}
		if entry.Main.FeelsLike > stats.feelsMax {
			stats.feelsMax = entry.Main.FeelsLike
		}
		stats.tempSum += entry.Main.Temp
		stats.humiditySum += entry.Main.Humidity
		if entry.Pop > stats.popMax {
			stats.popMax = entry.Pop
		}
		stats.count++
		if len(entry.Weather) > 0 {
			stats.conditions[entry.Weather[0].Main]++
			stats.descs[entry.Weather[0].Description]++
		}
	}

	sort.Strings(order)
	if len(order) > days {
		order = order[:days]
	}

	daily := make([]map[string]any, 0, len(order))
	for _, date := range order {
		stats := byDate[date]
		daily = append(daily, map[string]any{
			"date":                      stats.date,
			"temp_min":                  round1(stats.tempMin),
			"temp_max":                  round1(stats.tempMax),
			"temp_avg":                  round1(stats.tempSum / float64(stats.count)),
			"feels_like_min":            round1(stats.feelsMin),
			"feels_like_max":            round1(stats.feelsMax),
			"humidity_avg":              round1(stats.humiditySum / float64(stats.count)),
			"precipitation_probability": round1(stats.popMax * 100),
			"condition":                 modal(stats.conditions),
			"description":               modal(stats.descs),
		})
	}
	return daily
}

// modal returns the most frequent key, ties broken alphabetically for
// determinism.
func modal(counts map[string]int) string {
	best := ""
	bestCount := 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && (best == "" || k < best)) {
			best = k
			bestCount = n
		}
	}
	return best
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
