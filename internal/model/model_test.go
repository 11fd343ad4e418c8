package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRatingRoundsToTwoDecimals(t *testing.T) {
	avg, count := NextRating(4.0, 2, 5)
	assert.Equal(t, 4.33, avg)
	assert.Equal(t, 3, count)

	avg, count = NextRating(0, 0, 3)
	assert.Equal(t, 3.0, avg)
	assert.Equal(t, 1, count)
}

func TestPlanForDefaultsToFree(t *testing.T) {
	assert.Equal(t, PlanFree, PlanFor("").Key)
	assert.Equal(t, PlanFree, PlanFor("enterprise").Key)
	assert.Equal(t, 5, PlanFor(PlanStarter).ActiveVehicleLimit)
	assert.Equal(t, math.MaxInt, PlanFor(PlanPro).ActiveVehicleLimit)
	assert.Equal(t, "unlimited", PlanFor(PlanPro).LimitLabel())
	assert.Equal(t, "2", PlanFor(PlanFree).LimitLabel())
}

func TestWithImage(t *testing.T) {
	assert.Equal(t, "a.jpg", Vehicle{Image: "a.jpg", Photos: []string{"b.jpg"}}.WithImage().Image)
	assert.Equal(t, "b.jpg", Vehicle{Photos: []string{"b.jpg"}}.WithImage().Image)
	assert.Equal(t, PlaceholderImage, Vehicle{}.WithImage().Image)
}

func TestSummarizeVehicles(t *testing.T) {
	st := SummarizeVehicles([]Vehicle{
		{Status: VehicleActive, Category: "SUV", Country: "US", Price: 100},
		{Status: VehicleHidden, Category: "SUV", Country: "CA", Price: 51},
		{Status: VehicleActive, Category: "Sedan", Country: "US"},
	})
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Hidden)
	assert.Equal(t, 2, st.ByCategory["SUV"])
	assert.Equal(t, 2, st.ByCountry["US"])
	assert.Equal(t, 76.0, st.AveragePrice)
}

func TestMessageQueryViews(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []SupportMessage{
		{ID: "1", Status: MessageUnread, CreatedAt: base},
		{ID: "2", Status: MessageArchived, Starred: true, CreatedAt: base.Add(time.Hour)},
		{ID: "3", Status: MessageTrash, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "4", Status: MessageOpen, CreatedAt: base.Add(3 * time.Hour)},
	}

	inbox := MessageQuery{View: ViewInbox}.Select(msgs)
	require.Len(t, inbox, 2)
	assert.Equal(t, "4", inbox[0].ID)
	assert.Equal(t, "1", inbox[1].ID)

	starred := MessageQuery{View: ViewStarred}.Select(msgs)
	require.Len(t, starred, 1)
	assert.Equal(t, "2", starred[0].ID)

	trash := MessageQuery{View: "status-trash"}.Select(msgs)
	require.Len(t, trash, 1)
	assert.Equal(t, "3", trash[0].ID)

	oldest := MessageQuery{View: ViewAll, Sort: SortOldest}.Select(msgs)
	require.Len(t, oldest, 4)
	assert.Equal(t, "1", oldest[0].ID)
}

func TestMessageQuerySearch(t *testing.T) {
	msgs := []SupportMessage{
		{ID: "1", Status: MessageUnread, Name: "Dana", Subject: "Refund please"},
		{ID: "2", Status: MessageOpen, Email: "ops@example.com", Message: "Car was late"},
	}
	got := MessageQuery{Search: "REFUND"}.Select(msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	got = MessageQuery{Search: "example.com"}.Select(msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestMessagePatchApply(t *testing.T) {
	status := MessageResolved
	star := true
	tags := []string{"billing"}
	p := MessagePatch{Status: &status, Starred: &star, Tags: &tags}

	m := p.Apply(SupportMessage{Status: MessageUnread})
	assert.Equal(t, MessageResolved, m.Status)
	assert.True(t, m.Starred)
	assert.Equal(t, []string{"billing"}, m.Tags)
	assert.Equal(t, map[string]any{"status": "resolved", "starred": true, "tags": []string{"billing"}}, p.Fields())
}
