package amap

import (
	"context"
	"fmt"
)

// LiveWeather is the latest observation for a district.
type LiveWeather struct {
	Province      string `json:"province"`
	City          string `json:"city"`
	Adcode        string `json:"adcode"`
	Weather       string `json:"weather"`
	Temperature   string `json:"temperature"`
	WindDirection string `json:"winddirection"`
	WindPower     string `json:"windpower"`
	Humidity      string `json:"humidity"`
	ReportTime    string `json:"reporttime"`
}

// DayForecast is one day of a district forecast.
type DayForecast struct {
	Date         string `json:"date"`
	Week         string `json:"week"`
	DayWeather   string `json:"dayweather"`
	NightWeather string `json:"nightweather"`
	DayTemp      string `json:"daytemp"`
	NightTemp    string `json:"nighttemp"`
	DayWind      string `json:"daywind"`
	NightWind    string `json:"nightwind"`
	DayPower     string `json:"daypower"`
	NightPower   string `json:"nightpower"`
}

type Forecast struct {
	Province   string        `json:"province"`
	City       string        `json:"city"`
	Adcode     string        `json:"adcode"`
	ReportTime string        `json:"reporttime"`
	Casts      []DayForecast `json:"casts"`
}

// Day returns the forecast for date (YYYY-MM-DD).
func (f Forecast) Day(date string) (DayForecast, bool) {
	for _, c := range f.Casts {
		if c.Date == date {
			return c, true
		}
	}
	return DayForecast{}, false
}

// LiveWeather fetches current conditions for an adcode or city name.
func (c *Client) LiveWeather(ctx context.Context, city string) (LiveWeather, error) {
	var resp struct {
		Lives []LiveWeather `json:"lives"`
	}
	params := map[string]string{"city": city, "extensions": "base"}
	if err := c.get(ctx, "/v3/weather/weatherInfo", params, &resp); err != nil {
		return LiveWeather{}, err
	}
	if len(resp.Lives) == 0 {
		return LiveWeather{}, fmt.Errorf("%w: live weather for %q", ErrNoResult, city)
	}
	return resp.Lives[0], nil
}

// Forecast fetches the multi-day forecast for an adcode or city name.
func (c *Client) Forecast(ctx context.Context, city string) (Forecast, error) {
	var resp struct {
		Forecasts []Forecast `json:"forecasts"`
	}
	params := map[string]string{"city": city, "extensions": "all"}
	if err := c.get(ctx, "/v3/weather/weatherInfo", params, &resp); err != nil {
		return Forecast{}, err
	}
	if len(resp.Forecasts) == 0 {
		return Forecast{}, fmt.Errorf("%w: forecast for %q", ErrNoResult, city)
	}
	return resp.Forecasts[0], nil
}
