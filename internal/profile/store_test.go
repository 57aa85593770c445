package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbot/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestStore_GetUnknownIsEmpty(t *testing.T) {
	s := NewStore()
	p, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestStore_UpdateMergesShallow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Update(ctx, "u1", domain.ProfileUpdate{
		Destination: strPtr("杭州"),
		Preferences: []string{"美食", "购物"},
	})
	require.NoError(t, err)

	p, err := s.Update(ctx, "u1", domain.ProfileUpdate{
		Budget:      strPtr("5000元"),
		Preferences: []string{"徒步"},
	})
	require.NoError(t, err)

	assert.Equal(t, "杭州", p.Destination, "omitted fields are preserved")
	assert.Equal(t, "5000元", p.Budget)
	assert.Equal(t, []string{"徒步"}, p.Preferences, "lists are replaced, not appended")
}

func TestStore_ScalarUpdateIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := domain.ProfileUpdate{
		Destination: strPtr("成都"),
		TravelDates: &domain.DateRange{Start: "2024-05-01", End: "2024-05-03"},
		TravelStyle: strPtr("美食"),
	}

	once, err := s.Update(ctx, "u1", u)
	require.NoError(t, err)
	twice, err := s.Update(ctx, "u1", u)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestStore_DietaryRestrictionsAreASet(t *testing.T) {
	s := NewStore()
	p, err := s.Update(context.Background(), "u1", domain.ProfileUpdate{
		DietaryRestrictions: []string{"素食", "清真", "素食"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"素食", "清真"}, p.DietaryRestrictions)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p, err := s.Update(ctx, "u1", domain.ProfileUpdate{Preferences: []string{"a"}})
	require.NoError(t, err)

	p.Preferences[0] = "mutated"
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Preferences)
}

func TestStore_UsersAreIndependent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Update(ctx, "u1", domain.ProfileUpdate{Destination: strPtr("西安")})
	require.NoError(t, err)

	p, err := s.Get(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}
