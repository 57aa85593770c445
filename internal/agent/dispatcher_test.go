package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbot/internal/domain"
	"tripbot/internal/intent"
	"tripbot/internal/metrics"
)

const userID = "u1"

func tripProfile() domain.Profile {
	return domain.Profile{
		Destination: "昆明",
		TravelDates: &domain.DateRange{Start: "2026-11-01", End: "2026-11-03"},
		Preferences: []string{"美食"},
	}
}

func TestHandleTurn_WeatherEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.tools["get_current_temperature"].result = map[string]any{"location": "北京", "temperature": 18.0, "weather": "晴"}
	mem := NewMemory("你是旅行助手")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "北京今天天气怎么样", UserID: userID})

	assert.Equal(t, intent.KindWeather, reply.Branch)
	assert.Equal(t, metrics.OutcomeReplied, reply.Outcome)
	assert.Equal(t, "好的，这是回复。", reply.Text)
	assert.Equal(t, []string{"get_current_temperature"}, h.order)
	assert.Equal(t, map[string]any{"location": "北京"}, h.tools["get_current_temperature"].args)

	entries := mem.Snapshot()
	require.Len(t, entries, 4)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "北京今天天气怎么样"}, entries[1])
	assert.Equal(t, domain.RoleTool, entries[2].Role)
	assert.Equal(t, "get_current_temperature", entries[2].Name)
	assert.JSONEq(t, `{"location":"北京","temperature":18,"weather":"晴"}`, entries[2].Content)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "好的，这是回复。"}, entries[3])

	require.Equal(t, 1, h.provider.calls())
	sent := h.provider.requests[0].Messages
	require.Len(t, sent, 3)
	assert.Equal(t, domain.RoleTool, sent[len(sent)-1].Role, "the model sees the tool result last")
}

func TestHandleTurn_ForecastUsesDateTool(t *testing.T) {
	h := newHarness(t)
	reply := h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "上海明天天气怎么样", UserID: userID})

	assert.Equal(t, intent.KindWeather, reply.Branch)
	assert.Equal(t, []string{"get_temperature_date"}, h.order)
	assert.Equal(t, map[string]any{"location": "上海", "date": "2026-10-16"}, h.tools["get_temperature_date"].args)
}

func TestHandleTurn_NoCueIsPlainChat(t *testing.T) {
	h := newHarness(t)
	mem := NewMemory("sys")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "你好，请给我讲个笑话", UserID: userID})

	assert.Equal(t, intent.KindChat, reply.Branch)
	assert.Empty(t, h.order)
	_, called := h.registry.LastCall()
	assert.False(t, called)
	assert.Equal(t, 1, h.provider.calls())
	assert.Equal(t, 3, mem.Len())
}

func TestHandleTurn_PackingFetchesWeatherFirst(t *testing.T) {
	h := newHarness(t)
	h.profiles.set(userID, tripProfile())
	weather := map[string]any{"location": "昆明", "temperature": 8.0, "humidity": "85"}
	h.tools["get_current_temperature"].result = weather
	mem := NewMemory("sys")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "去云南需要带什么", UserID: userID})

	assert.Equal(t, intent.KindPacking, reply.Branch)
	assert.Equal(t, []string{"get_current_temperature", "generate_packing_list"}, h.order)
	assert.Equal(t, map[string]any{"location": "昆明"}, h.tools["get_current_temperature"].args)

	args := h.tools["generate_packing_list"].args
	assert.Equal(t, weather, args["weather_info"])
	assert.Equal(t, "昆明", args["destination"])
	assert.Equal(t, []any{"2026-11-01", "2026-11-03"}, args["travel_dates"])
	assert.Equal(t, "休闲", args["user_style"])

	entries := mem.Snapshot()
	require.Len(t, entries, 5)
	assert.Equal(t, "get_current_temperature", entries[2].Name)
	assert.Equal(t, "generate_packing_list", entries[3].Name)
}

func TestHandleTurn_PackingStyleFromProfile(t *testing.T) {
	h := newHarness(t)
	p := tripProfile()
	p.TravelStyle = "冒险"
	h.profiles.set(userID, p)

	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "去云南需要带什么", UserID: userID})
	assert.Equal(t, "冒险", h.tools["generate_packing_list"].args["user_style"])
}

func TestHandleTurn_GuardedBranchesClarify(t *testing.T) {
	cases := []struct {
		name string
		text string
		kind intent.Kind
		want string
	}{
		{"itinerary", "帮我规划一个三天的旅行", intent.KindItinerary, clarifyItinerary},
		{"packing", "去云南需要带什么", intent.KindPacking, clarifyPacking},
		{"social", "帮我写一条朋友圈文案", intent.KindSocialMedia, clarifySocial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			mem := NewMemory("sys")

			reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: tc.text, UserID: userID})

			assert.Equal(t, tc.kind, reply.Branch)
			assert.Equal(t, metrics.OutcomeClarified, reply.Outcome)
			assert.Equal(t, tc.want, reply.Text)
			assert.Empty(t, h.order, "no tool runs without the profile data")
			assert.Zero(t, h.provider.calls(), "no model call either")
			entries := mem.Snapshot()
			require.Len(t, entries, 3)
			assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: tc.want}, entries[2])
		})
	}
}

func TestHandleTurn_ItineraryUsesProfile(t *testing.T) {
	h := newHarness(t)
	p := tripProfile()
	p.Budget = "3000元"
	h.profiles.set(userID, p)

	reply := h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "帮我规划一个三天的旅行", UserID: userID})

	assert.Equal(t, metrics.OutcomeReplied, reply.Outcome)
	assert.Equal(t, map[string]any{
		"destination": "昆明",
		"start_date":  "2026-11-01",
		"end_date":    "2026-11-03",
		"user_preferences": map[string]any{
			"preferences": []any{"美食"},
			"budget":      "3000元",
		},
	}, h.tools["generate_travel_itinerary"].args)
}

func TestHandleTurn_SocialWithProfile(t *testing.T) {
	h := newHarness(t)
	h.profiles.set(userID, tripProfile())

	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "帮我写一条小红书文案，风格幽默", UserID: userID})

	args := h.tools["generate_social_media_post"].args
	assert.Equal(t, "小红书", args["platform"])
	assert.Equal(t, "幽默", args["style"])
	trip := args["trip_info"].(map[string]any)
	assert.Equal(t, "昆明", trip["destination"])
}

func TestHandleTurn_ImageWithSocialCue(t *testing.T) {
	h := newHarness(t)
	analysis := map[string]any{"landmark": "天安门", "recognized": true}
	h.tools["analyze_travel_photo"].result = analysis

	reply := h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{
		Text:   "帮我分析一下这张照片，发个朋友圈",
		Images: []string{"aGVsbG8="},
		UserID: userID,
	})

	assert.Equal(t, intent.KindImageAnalysis, reply.Branch)
	assert.Equal(t, []string{"analyze_travel_photo", "generate_social_media_post"}, h.order)
	assert.Equal(t, "aGVsbG8=", h.tools["analyze_travel_photo"].args["image_data"])
	post := h.tools["generate_social_media_post"].args
	assert.Equal(t, []any{analysis}, post["photos_analysis"])
	assert.Equal(t, "微信", post["platform"])

	last, ok := h.registry.LastCall()
	require.True(t, ok)
	assert.Equal(t, "generate_social_media_post", last.Name)
}

func TestHandleTurn_ImageWithoutSocialCue(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{
		Text:   "帮我识别这张图片",
		Images: []string{"https://example.com/a.jpg"},
		UserID: userID,
	})
	assert.Equal(t, []string{"analyze_travel_photo"}, h.order)
}

func TestHandleTurn_UserInfo(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "我想去杭州旅游，预算5000元", UserID: userID})

	assert.Equal(t, []string{"collect_user_info"}, h.order)
	args := h.tools["collect_user_info"].args
	assert.Equal(t, userID, args["user_id"])
	info := args["info"].(map[string]any)
	assert.Equal(t, "杭州", info["destination"])
	assert.Equal(t, "5000元", info["budget"])
}

func TestHandleTurn_UserInfoQueryWhenNothingExtracted(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "看看我的个人信息", UserID: userID})
	assert.Equal(t, []string{"get_user_info"}, h.order)
	assert.Equal(t, map[string]any{"user_id": userID}, h.tools["get_user_info"].args)
}

func TestHandleTurn_ToolFailureStillReplies(t *testing.T) {
	h := newHarness(t)
	h.tools["get_current_temperature"].err = errors.New("amap: connection refused")
	mem := NewMemory("sys")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "北京今天天气怎么样", UserID: userID})

	assert.Equal(t, metrics.OutcomeReplied, reply.Outcome)
	assert.Equal(t, "好的，这是回复。", reply.Text)
	entries := mem.Snapshot()
	require.Len(t, entries, 4)
	assert.JSONEq(t, `{"error":"amap: connection refused"}`, entries[2].Content)
	assert.Equal(t, domain.RoleAssistant, entries[3].Role)
}

func TestHandleTurn_ToolPanicStillReplies(t *testing.T) {
	h := newHarness(t)
	h.tools["get_traffic_status"].panics = true
	mem := NewMemory("sys")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "西湖的交通怎么样", UserID: userID})

	assert.Equal(t, intent.KindTraffic, reply.Branch)
	assert.Equal(t, metrics.OutcomeReplied, reply.Outcome)
	assert.Contains(t, mem.Snapshot()[2].Content, `"error"`)
}

func TestHandleTurn_ModelFailureLeavesNoAssistantEntry(t *testing.T) {
	h := newHarness(t)
	h.provider.reply = []string{"半句"}
	h.provider.err = errors.New("upstream 503")
	mem := NewMemory("sys")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "北京今天天气怎么样", UserID: userID})

	assert.Equal(t, metrics.OutcomeFailed, reply.Outcome)
	assert.Error(t, reply.Err)
	assert.Equal(t, "抱歉，处理您的请求时出现了问题: model call: upstream 503", reply.Text)
	for _, e := range mem.Snapshot() {
		assert.NotEqual(t, domain.RoleAssistant, e.Role)
	}
}

func TestHandleTurn_ModelPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.provider.panics = true
	mem := NewMemory("sys")

	reply := h.dispatcher.HandleTurn(context.Background(), mem, Turn{Text: "你好", UserID: userID})

	assert.Equal(t, metrics.OutcomeFailed, reply.Outcome)
	assert.Contains(t, reply.Text, "provider exploded")
	assert.Equal(t, 2, mem.Len())
}

func TestHandleTurn_ProfileStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.profiles.err = errors.New("disk gone")

	reply := h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "去云南需要带什么", UserID: userID})

	assert.Equal(t, metrics.OutcomeFailed, reply.Outcome)
	assert.Contains(t, reply.Text, "disk gone")
	assert.Zero(t, h.provider.calls())
}

func TestHandleTurn_RecordsMetrics(t *testing.T) {
	h := newHarness(t)
	m := metrics.New()
	h.dispatcher.metrics = m

	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "北京今天天气怎么样", UserID: userID})
	h.dispatcher.HandleTurn(context.Background(), NewMemory("sys"), Turn{Text: "帮我规划一个三天的旅行", UserID: userID})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("weather", metrics.OutcomeReplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("itinerary", metrics.OutcomeClarified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("ok")))
}
