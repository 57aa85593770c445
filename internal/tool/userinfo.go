package tool

import (
	"context"
	"errors"
	"fmt"

	"tripbot/internal/domain"
)

var errProfilesUnavailable = errors.New("profile store not configured")

func profileParam() Param {
	str := &Param{Type: "string"}
	return Param{
		Type:        "object",
		Description: "Profile fields to set; omitted fields are kept, lists replace the stored list",
		Properties: map[string]Param{
			"destination": {Type: "string"},
			"travel_dates": {
				Type:       "object",
				Properties: map[string]Param{"start": {Type: "string"}, "end": {Type: "string"}},
				Required:   []string{"start", "end"},
			},
			"dietary_restrictions": {Type: "array", Items: str},
			"preferences":          {Type: "array", Items: str},
			"budget":               {Type: "string"},
			"travel_style":         {Type: "string"},
		},
	}
}

// CollectUserInfoTool merges extracted facts into a user's profile.
type CollectUserInfoTool struct {
	profiles domain.ProfileStore
}

func NewCollectUserInfoTool(profiles domain.ProfileStore) *CollectUserInfoTool {
	return &CollectUserInfoTool{profiles: profiles}
}

func (t *CollectUserInfoTool) Name() string { return "collect_user_info" }
func (t *CollectUserInfoTool) Description() string {
	return "Save travel preferences for a user (destination, dates, dietary restrictions, preferences, budget, style) and return the updated profile."
}
func (t *CollectUserInfoTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"user_id": {Type: "string", Description: "User identifier"},
			"info":    profileParam(),
		},
		[]string{"user_id", "info"},
	)
}

func (t *CollectUserInfoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	if t.profiles == nil {
		return nil, errProfilesUnavailable
	}
	var update domain.ProfileUpdate
	if err := decodeArg(args, "info", &update); err != nil {
		return nil, err
	}
	p, err := t.profiles.Update(ctx, userID, update)
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", userID, err)
	}
	return p, nil
}

// GetUserInfoTool returns a user's stored profile.
type GetUserInfoTool struct {
	profiles domain.ProfileStore
}

func NewGetUserInfoTool(profiles domain.ProfileStore) *GetUserInfoTool {
	return &GetUserInfoTool{profiles: profiles}
}

func (t *GetUserInfoTool) Name() string { return "get_user_info" }
func (t *GetUserInfoTool) Description() string {
	return "Get the stored travel preferences of a user."
}
func (t *GetUserInfoTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"user_id": {Type: "string", Description: "User identifier"},
		},
		[]string{"user_id"},
	)
}

func (t *GetUserInfoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	if t.profiles == nil {
		return nil, errProfilesUnavailable
	}
	p, err := t.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return p, nil
}
