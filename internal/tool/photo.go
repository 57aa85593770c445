package tool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var errVisionUnavailable = errors.New("image recognition not configured")

type PhotoAnalysis struct {
	Landmark   string `json:"landmark,omitempty"`
	Recognized bool   `json:"recognized"`
	Scene      string `json:"scene"`
}

// PhotoAnalysisTool identifies the landmark in a travel photo.
type PhotoAnalysisTool struct {
	vision LandmarkRecognizer
}

func NewPhotoAnalysisTool(vision LandmarkRecognizer) *PhotoAnalysisTool {
	return &PhotoAnalysisTool{vision: vision}
}

func (t *PhotoAnalysisTool) Name() string { return "analyze_travel_photo" }
func (t *PhotoAnalysisTool) Description() string {
	return "Analyze a travel photo and identify the landmark or attraction in it."
}
func (t *PhotoAnalysisTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"image_data": {Type: "string", Description: "Base64 image, data URL, or http(s) image URL"},
		},
		[]string{"image_data"},
	)
}

func (t *PhotoAnalysisTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	image, err := requireString(args, "image_data")
	if err != nil {
		return nil, err
	}
	if t.vision == nil {
		return nil, errVisionUnavailable
	}
	lm, err := t.vision.RecognizeLandmark(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("analyze photo: %w", err)
	}
	if lm.Name == "" {
		return PhotoAnalysis{Scene: "未识别到知名地标"}, nil
	}
	return PhotoAnalysis{Landmark: lm.Name, Recognized: true, Scene: "旅游景点"}, nil
}

type SocialPost struct {
	Platform         string   `json:"platform"`
	Style            string   `json:"style"`
	TextOptions      []string `json:"text_options"`
	Hashtags         []string `json:"hashtags"`
	EmojiSuggestions []string `json:"emoji_suggestions"`
}

// styleLines adds one caption per requested style; %s is the place.
var styleLines = map[string]string{
	"幽默": "😂 在%s走断了腿，但是值了！",
	"文艺": "🍃 %s的风，吹过了整个夏天",
	"简洁": "%s，打卡。",
	"专业": "📝 %s游记：行程、交通与实用建议",
	"感性": "💫 %s，遇见最好的自己",
	"励志": "🚀 说走就走，%s只是开始",
}

var platformTags = map[string][]string{
	"小红书": {"#小红书旅行", "#旅行攻略"},
	"微博":  {"#旅行日记"},
	"抖音":  {"#旅行vlog"},
	"微信":  {"#朋友圈"},
}

// SocialPostTool writes caption options for a travel post.
type SocialPostTool struct{}

func NewSocialPostTool() *SocialPostTool {
	return &SocialPostTool{}
}

func (t *SocialPostTool) Name() string { return "generate_social_media_post" }
func (t *SocialPostTool) Description() string {
	return "Generate social media captions, hashtags and emoji for a trip, optionally using photo analysis results."
}
func (t *SocialPostTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"trip_info":       {Type: "object", Description: "Trip details such as destination and travel_dates"},
			"photos_analysis": {Type: "array", Description: "Results of analyze_travel_photo", Items: &Param{Type: "object"}},
			"platform":        {Type: "string", Description: "Target platform, e.g. 微信, 微博, 小红书 (default 通用)"},
			"style":           {Type: "string", Description: "Writing style, e.g. 幽默, 文艺 (default 旅行)"},
			"keywords":        {Type: "array", Description: "Extra keywords to work in", Items: &Param{Type: "string"}},
		},
		[]string{"trip_info"},
	)
}

func (t *SocialPostTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	trip := ArgsMap(args, "trip_info")
	place, _ := trip["destination"].(string)

	var landmarks []string
	if photos, ok := args["photos_analysis"].([]any); ok {
		for _, p := range photos {
			m, _ := p.(map[string]any)
			if lm, _ := m["landmark"].(string); lm != "" && !slices.Contains(landmarks, lm) {
				landmarks = append(landmarks, lm)
			}
		}
	}
	if place == "" && len(landmarks) > 0 {
		place = landmarks[0]
	}
	if place == "" {
		return nil, fmt.Errorf("%w: trip_info has no destination and no landmark was recognized", ErrInvalidArguments)
	}

	platform := ArgsString(args, "platform")
	if platform == "" {
		platform = "通用"
	}
	style := ArgsString(args, "style")
	if style == "" {
		style = "旅行"
	}

	texts := []string{
		fmt.Sprintf("📍%s | 今天的旅行真是太棒了！", place),
		fmt.Sprintf("🌟 在%s发现了这些美好瞬间", place),
		fmt.Sprintf("✨ %s之旅，每一刻都值得记录", place),
	}
	if line, ok := styleLines[style]; ok {
		texts = append([]string{fmt.Sprintf(line, place)}, texts...)
	}
	for _, lm := range landmarks {
		if lm != place {
			texts = append(texts, fmt.Sprintf("🏞️ %s的%s真的太美了！", place, lm))
		}
	}
	if len(landmarks) == 1 && landmarks[0] == place {
		texts = append(texts, fmt.Sprintf("🏞️ %s的风景真的太美了！", place))
	}

	tags := []string{"#" + place, "#旅行", "#美好时光"}
	for _, lm := range landmarks {
		tags = appendTag(tags, lm)
	}
	for _, kw := range ArgsStrings(args, "keywords") {
		tags = appendTag(tags, kw)
	}
	for _, tag := range platformTags[platform] {
		tags = appendTag(tags, tag)
	}

	return SocialPost{
		Platform:         platform,
		Style:            style,
		TextOptions:      texts,
		Hashtags:         tags,
		EmojiSuggestions: []string{"📸", "🌈", "💕", "🎉"},
	}, nil
}

func appendTag(tags []string, word string) []string {
	word = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(word), "#"))
	if word == "" {
		return tags
	}
	tag := "#" + strings.ReplaceAll(word, " ", "")
	if slices.Contains(tags, tag) {
		return tags
	}
	return append(tags, tag)
}
