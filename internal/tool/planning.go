package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const maxItineraryDays = 30

type DayPlan struct {
	Day        int            `json:"day"`
	Date       string         `json:"date"`
	Weather    *WeatherReport `json:"weather,omitempty"`
	Morning    string         `json:"morning"`
	Afternoon  string         `json:"afternoon"`
	Evening    string         `json:"evening"`
	IndoorOnly bool           `json:"indoor_only,omitempty"`
}

type Recommendations struct {
	Clothing   []string `json:"clothing"`
	Activities []string `json:"activities"`
	Dining     []string `json:"dining"`
}

type Itinerary struct {
	Destination     string          `json:"destination"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	Days            int             `json:"days"`
	DailyPlans      []DayPlan       `json:"daily_plans"`
	Recommendations Recommendations `json:"recommendations"`
	Budget          string          `json:"budget,omitempty"`
}

// TravelPreferences is the user_preferences argument; it mirrors the
// profile fields the planner cares about.
type TravelPreferences struct {
	Preferences         []string `json:"preferences"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Budget              string   `json:"budget"`
	TravelStyle         string   `json:"travel_style"`
}

// activityCatalog maps preference keywords to suggested activities.
var activityCatalog = []struct {
	keywords   []string
	activities []string
}{
	{[]string{"美食", "小吃", "food"}, []string{"品尝当地特色小吃", "逛美食街", "体验地道餐馆"}},
	{[]string{"文化", "历史", "博物馆", "古迹", "culture", "history"}, []string{"参观博物馆", "游览历史古迹", "感受老街文化"}},
	{[]string{"购物", "逛街", "shopping"}, []string{"逛特色商业街", "选购当地手信"}},
	{[]string{"自然", "风景", "爬山", "徒步", "nature", "hiking"}, []string{"游览自然风光", "城市公园散步", "登高看日落"}},
	{[]string{"摄影", "拍照", "photo"}, []string{"寻找最佳拍照点", "拍摄城市夜景"}},
	{[]string{"放松", "休闲", "relax"}, []string{"咖啡馆小憩", "体验当地温泉或按摩"}},
}

var (
	defaultActivities = []string{"城市地标打卡", "当地特色街区漫步", "品尝当地美食"}
	indoorActivities  = []string{"参观室内博物馆或展览", "逛大型商场", "体验当地室内演出"}
)

// ItineraryTool generates a day-by-day plan, attaching the forecast for
// days the weather service covers.
type ItineraryTool struct {
	maps   MapService
	logger *slog.Logger
}

func NewItineraryTool(maps MapService, logger *slog.Logger) *ItineraryTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItineraryTool{maps: maps, logger: logger}
}

func (t *ItineraryTool) Name() string { return "generate_travel_itinerary" }
func (t *ItineraryTool) Description() string {
	return "Generate a day-by-day travel itinerary for a destination and date range, using the weather forecast and the user's preferences."
}
func (t *ItineraryTool) Parameters() map[string]any {
	str := &Param{Type: "string"}
	return ToolParameters(
		map[string]Param{
			"destination": {Type: "string", Description: "Destination city"},
			"start_date":  {Type: "string", Description: "First day, YYYY-MM-DD"},
			"end_date":    {Type: "string", Description: "Last day, YYYY-MM-DD"},
			"user_preferences": {
				Type:        "object",
				Description: "Traveller preferences",
				Properties: map[string]Param{
					"preferences":          {Type: "array", Items: str},
					"dietary_restrictions": {Type: "array", Items: str},
					"budget":               {Type: "string"},
					"travel_style":         {Type: "string"},
				},
			},
		},
		[]string{"destination", "start_date", "end_date"},
	)
}

func (t *ItineraryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	destination, err := requireString(args, "destination")
	if err != nil {
		return nil, err
	}
	start, end, err := parseDateRange(ArgsString(args, "start_date"), ArgsString(args, "end_date"))
	if err != nil {
		return nil, err
	}
	var prefs TravelPreferences
	if err := decodeArg(args, "user_preferences", &prefs); err != nil {
		return nil, err
	}

	forecast := t.forecast(ctx, destination)
	days := int(end.Sub(start).Hours()/24) + 1
	activities := activitiesFor(prefs.Preferences)

	it := Itinerary{
		Destination: destination,
		StartDate:   start.Format(time.DateOnly),
		EndDate:     end.Format(time.DateOnly),
		Days:        days,
		DailyPlans:  make([]DayPlan, 0, days),
		Budget:      prefs.Budget,
	}
	var firstWeather *WeatherReport
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		plan := DayPlan{Day: i + 1, Date: date}
		if w, ok := forecast[date]; ok {
			plan.Weather = &w
			if firstWeather == nil {
				firstWeather = &w
			}
			plan.IndoorOnly = isWet(w.Weather)
		}
		pool := activities
		if plan.IndoorOnly {
			pool = indoorActivities
		}
		plan.Morning = pool[(3*i)%len(pool)]
		plan.Afternoon = pool[(3*i+1)%len(pool)]
		plan.Evening = pool[(3*i+2)%len(pool)]
		if i == 0 {
			plan.Morning = "抵达" + destination + "，办理入住"
		}
		if i == days-1 && days > 1 {
			plan.Evening = "整理行李，准备返程"
		}
		it.DailyPlans = append(it.DailyPlans, plan)
	}

	it.Recommendations = Recommendations{
		Clothing:   clothingFor(firstWeather),
		Activities: activities,
		Dining:     diningFor(prefs.DietaryRestrictions),
	}
	return it, nil
}

// forecast returns the available forecast days keyed by date. Weather is
// best effort: a failed lookup yields a plan without forecasts.
func (t *ItineraryTool) forecast(ctx context.Context, destination string) map[string]WeatherReport {
	out := map[string]WeatherReport{}
	if t.maps == nil {
		return out
	}
	loc, err := t.maps.Resolve(ctx, destination)
	if err != nil {
		t.logger.Warn("itinerary: resolve destination failed", "destination", destination, "err", err)
		return out
	}
	fc, err := t.maps.Forecast(ctx, cityKey(loc))
	if err != nil {
		t.logger.Warn("itinerary: forecast failed", "destination", destination, "err", err)
		return out
	}
	for _, day := range fc.Casts {
		out[day.Date] = forecastReport(destination, fc.City, day, UnitCelsius)
	}
	return out
}

func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date %q is not YYYY-MM-DD", ErrInvalidArguments, startStr)
	}
	end, err := time.Parse(time.DateOnly, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date %q is not YYYY-MM-DD", ErrInvalidArguments, endStr)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date %s is before start_date %s", ErrInvalidArguments, endStr, startStr)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxItineraryDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: trip of %d days exceeds %d", ErrInvalidArguments, days, maxItineraryDays)
	}
	return start, end, nil
}

// decodeArg decodes the object at args[key] into out. A missing key
// leaves out untouched.
func decodeArg(args map[string]any, key string, out any) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, key, err)
	}
	return nil
}

func activitiesFor(prefs []string) []string {
	var out []string
	for _, p := range prefs {
		p = strings.ToLower(p)
		for _, e := range activityCatalog {
			if !slices.ContainsFunc(e.keywords, func(k string) bool { return strings.Contains(p, k) }) {
				continue
			}
			for _, a := range e.activities {
				if !slices.Contains(out, a) {
					out = append(out, a)
				}
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultActivities...)
	}
	return out
}

func isWet(weather string) bool {
	return strings.Contains(weather, "雨") || strings.Contains(weather, "雪")
}

func clothingFor(w *WeatherReport) []string {
	if w == nil {
		return []string{"根据出发前的天气预报准备衣物", "带一件可叠加的外套"}
	}
	var out []string
	low := w.Temperature
	if w.TemperatureLow != nil {
		low = *w.TemperatureLow
	}
	switch {
	case w.Temperature < 10:
		out = append(out, "厚外套", "保暖内衣")
	case w.Temperature > 25:
		out = append(out, "短袖", "防晒衣")
	default:
		out = append(out, "长袖", "薄外套")
	}
	if w.Temperature-low >= 10 {
		out = append(out, "早晚温差大，注意增减衣物")
	}
	if isWet(w.Weather) {
		out = append(out, "雨具")
	}
	return out
}

var dietaryAdvice = map[string]string{
	"素食":   "优先选择素食餐厅或寺院素斋",
	"清真":   "选择带清真标识的餐厅",
	"无麸质":  "点餐时说明无麸质需求",
	"海鲜过敏": "避开海鲜类菜品并提前告知餐厅",
	"坚果过敏": "点餐时告知坚果过敏",
}

func diningFor(restrictions []string) []string {
	out := []string{"品尝当地特色菜"}
	for _, r := range restrictions {
		if advice, ok := dietaryAdvice[r]; ok {
			out = append(out, advice)
		} else {
			out = append(out, "注意饮食限制: "+r)
		}
	}
	return out
}

type PackingList struct {
	Destination string   `json:"destination"`
	TravelDates []string `json:"travel_dates"`
	Style       string   `json:"style"`
	Items       []string `json:"items"`
}

var basePackingItems = []string{"身份证件", "手机充电器", "常用药品"}

var stylePackingItems = map[string][]string{
	"商务": {"正装", "笔记本电脑", "名片"},
	"冒险": {"登山鞋", "双肩背包", "水壶", "急救包"},
	"家庭": {"儿童用品", "湿纸巾", "零食"},
	"奢华": {"晚礼服", "精致配饰"},
	"经济": {"可重复使用水杯", "折叠购物袋"},
	"休闲": {"舒适便鞋", "相机"},
}

// PackingListTool builds a rule-based packing list from the weather and
// travel style.
type PackingListTool struct{}

func NewPackingListTool() *PackingListTool {
	return &PackingListTool{}
}

func (t *PackingListTool) Name() string { return "generate_packing_list" }
func (t *PackingListTool) Description() string {
	return "Generate a packing list for a trip from the destination weather and the traveller's style."
}
func (t *PackingListTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"destination":  {Type: "string", Description: "Destination city"},
			"travel_dates": {Type: "array", Description: "[start, end] as YYYY-MM-DD", Items: &Param{Type: "string"}},
			"weather_info": {Type: "object", Description: "Weather report for the destination (temperature, humidity)"},
			"user_style":   {Type: "string", Description: "Travel style, e.g. 商务, 冒险, 家庭, 休闲"},
		},
		[]string{"destination", "travel_dates"},
	)
}

func (t *PackingListTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	destination, err := requireString(args, "destination")
	if err != nil {
		return nil, err
	}
	dates := ArgsStrings(args, "travel_dates")
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: travel_dates is empty", ErrInvalidArguments)
	}
	style := ArgsString(args, "user_style")

	items := append([]string(nil), basePackingItems...)
	if weather := ArgsMap(args, "weather_info"); weather != nil {
		temp, hasTemp := weather["temperature"].(float64)
		if hasTemp && weather["unit"] == UnitFahrenheit {
			temp = (temp - 32) * 5 / 9
		}
		switch {
		case hasTemp && temp < 10:
			items = append(items, "厚外套", "保暖内衣", "手套")
		case hasTemp && temp > 25:
			items = append(items, "防晒霜", "太阳镜", "轻薄衣物")
		}
		if humidity, ok := weather["humidity"].(float64); ok && humidity > 80 {
			items = append(items, "雨伞")
		} else if w, ok := weather["weather"].(string); ok && isWet(w) && !slices.Contains(items, "雨伞") {
			items = append(items, "雨伞")
		}
	}
	items = append(items, stylePackingItems[style]...)

	return PackingList{
		Destination: destination,
		TravelDates: dates,
		Style:       style,
		Items:       items,
	}, nil
}
