package tool

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tripbot/internal/tool/amap"
)

const (
	UnitCelsius    = "celsius"
	UnitFahrenheit = "fahrenheit"
)

// WeatherReport is returned by both weather tools and consumed by the
// packing tool as weather_info.
type WeatherReport struct {
	Location       string   `json:"location"`
	City           string   `json:"city,omitempty"`
	Date           string   `json:"date,omitempty"`
	Weather        string   `json:"weather"`
	NightWeather   string   `json:"night_weather,omitempty"`
	Temperature    float64  `json:"temperature"`
	TemperatureLow *float64 `json:"temperature_low,omitempty"`
	Unit           string   `json:"unit"`
	Humidity       float64  `json:"humidity,omitempty"`
	Wind           string   `json:"wind,omitempty"`
	ReportTime     string   `json:"report_time,omitempty"`
}

func unitParam() Param {
	return Param{Type: "string", Description: "Temperature unit", Enum: []string{UnitCelsius, UnitFahrenheit}}
}

// convert turns a Celsius reading into unit, rounded to one decimal.
func convert(c float64, unit string) float64 {
	if unit == UnitFahrenheit {
		c = c*9/5 + 32
	}
	return math.Round(c*10) / 10
}

func parseNumber(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func unitArg(args map[string]any) string {
	if ArgsString(args, "unit") == UnitFahrenheit {
		return UnitFahrenheit
	}
	return UnitCelsius
}

// CurrentWeatherTool reports live conditions.
type CurrentWeatherTool struct {
	maps MapService
}

func NewCurrentWeatherTool(maps MapService) *CurrentWeatherTool {
	return &CurrentWeatherTool{maps: maps}
}

func (t *CurrentWeatherTool) Name() string { return "get_current_temperature" }
func (t *CurrentWeatherTool) Description() string {
	return "Get the current temperature and weather conditions at a location."
}
func (t *CurrentWeatherTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"location": {Type: "string", Description: "City or place name, e.g. 北京"},
			"unit":     unitParam(),
		},
		[]string{"location"},
	)
}

func (t *CurrentWeatherTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	location, err := requireString(args, "location")
	if err != nil {
		return nil, err
	}
	if t.maps == nil {
		return nil, errMapsUnavailable
	}
	loc, err := t.maps.Resolve(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	live, err := t.maps.LiveWeather(ctx, cityKey(loc))
	if err != nil {
		return nil, fmt.Errorf("weather for %s: %w", location, err)
	}
	unit := unitArg(args)
	return WeatherReport{
		Location:    location,
		City:        live.City,
		Weather:     live.Weather,
		Temperature: convert(parseNumber(live.Temperature), unit),
		Unit:        unit,
		Humidity:    parseNumber(live.Humidity),
		Wind:        windText(live.WindDirection, live.WindPower),
		ReportTime:  live.ReportTime,
	}, nil
}

// DateWeatherTool reports the forecast for one day.
type DateWeatherTool struct {
	maps MapService
	now  func() time.Time
}

func NewDateWeatherTool(maps MapService, now func() time.Time) *DateWeatherTool {
	if now == nil {
		now = time.Now
	}
	return &DateWeatherTool{maps: maps, now: now}
}

func (t *DateWeatherTool) Name() string { return "get_temperature_date" }
func (t *DateWeatherTool) Description() string {
	return "Get the forecast temperature and weather at a location on a given date (up to a few days ahead)."
}
func (t *DateWeatherTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"location": {Type: "string", Description: "City or place name"},
			"date":     {Type: "string", Description: "Date as YYYY-MM-DD, or 今天 / 明天 / 后天"},
			"unit":     unitParam(),
		},
		[]string{"location", "date"},
	)
}

var relativeDays = map[string]int{
	"今天":       0,
	"today":    0,
	"明天":       1,
	"tomorrow": 1,
	"后天":       2,
	"大后天":      3,
}

// ResolveDate turns a relative day word or a date into YYYY-MM-DD.
func ResolveDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if off, ok := relativeDays[strings.ToLower(s)]; ok {
		return now.AddDate(0, 0, off).Format(time.DateOnly), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidArguments, s)
	}
	return d.Format(time.DateOnly), nil
}

func (t *DateWeatherTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	location, err := requireString(args, "location")
	if err != nil {
		return nil, err
	}
	date, err := ResolveDate(ArgsString(args, "date"), t.now())
	if err != nil {
		return nil, err
	}
	if t.maps == nil {
		return nil, errMapsUnavailable
	}
	loc, err := t.maps.Resolve(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	fc, err := t.maps.Forecast(ctx, cityKey(loc))
	if err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", location, err)
	}
	day, ok := fc.Day(date)
	if !ok {
		return nil, fmt.Errorf("no forecast for %s on %s (available: %s)", location, date, strings.Join(forecastDates(fc), ", "))
	}
	return forecastReport(location, fc.City, day, unitArg(args)), nil
}

func forecastReport(location, city string, day amap.DayForecast, unit string) WeatherReport {
	low := convert(parseNumber(day.NightTemp), unit)
	return WeatherReport{
		Location:       location,
		City:           city,
		Date:           day.Date,
		Weather:        day.DayWeather,
		NightWeather:   day.NightWeather,
		Temperature:    convert(parseNumber(day.DayTemp), unit),
		TemperatureLow: &low,
		Unit:           unit,
		Wind:           windText(day.DayWind, day.DayPower),
	}
}

func forecastDates(fc amap.Forecast) []string {
	out := make([]string, 0, len(fc.Casts))
	for _, c := range fc.Casts {
		out = append(out, c.Date)
	}
	return out
}

func windText(direction, power string) string {
	if direction == "" && power == "" {
		return ""
	}
	return strings.TrimSpace(direction + "风 " + power + "级")
}

// cityKey prefers the adcode, which AMap weather accepts unambiguously.
func cityKey(loc amap.Location) string {
	if loc.Adcode != "" {
		return loc.Adcode
	}
	if loc.City != "" {
		return loc.City
	}
	return loc.Name
}
