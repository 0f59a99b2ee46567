package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bili_push/internal/domain"
)

func status(isLive bool, title string) domain.LiveStatus {
	return domain.LiveStatus{IsLive: isLive, Title: title}
}

func TestDeriveAction(t *testing.T) {
	tests := []struct {
		name string
		old  domain.LiveStatus
		cur  domain.LiveStatus
		want Action
	}{
		{"turn on", status(false, ""), status(true, "X"), ActionTurnOn},
		{"turn on same title", status(false, "X"), status(true, "X"), ActionTurnOn},
		{"steady on", status(true, "X"), status(true, "X"), ActionOn},
		{"title update", status(true, "X"), status(true, "Y"), ActionTitleUpdate},
		{"turn off", status(true, "X"), status(false, "X"), ActionTurnOff},
		{"steady off", status(false, "X"), status(false, "Y"), ActionOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAction(tt.old, tt.cur))
		})
	}
}

func TestDeriveAction_IgnoresOtherFields(t *testing.T) {
	old := domain.LiveStatus{IsLive: true, Title: "X", RoomID: 1, AreaName: "a"}
	cur := domain.LiveStatus{IsLive: true, Title: "X", RoomID: 2, AreaName: "b", LiveState: StateLive}

	assert.Equal(t, ActionOn, DeriveAction(old, cur))
}

func TestCompareStatus(t *testing.T) {
	tests := []struct {
		name     string
		old      domain.LiveStatus
		cur      domain.LiveStatus
		category domain.Category
	}{
		{"turn on", status(false, ""), status(true, "X"), domain.CategoryLiveOn},
		{"title update", status(true, "X"), status(true, "Y"), domain.CategoryLiveTitleUpdate},
		{"turn off", status(true, "X"), status(false, "X"), domain.CategoryLiveOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := CompareStatus(tt.old, tt.cur)
			require.Len(t, posts, 1)
			assert.Equal(t, tt.category, posts[0].Category)
			assert.Equal(t, domain.SourceStatus, posts[0].Kind)
		})
	}

	assert.Empty(t, CompareStatus(status(true, "X"), status(true, "X")))
	assert.Empty(t, CompareStatus(status(false, ""), status(false, "")))
}

func TestStatusPost(t *testing.T) {
	st := domain.LiveStatus{
		Target:       "7",
		Title:        "Speedrun",
		IsLive:       true,
		LiveState:    StateLive,
		RoomID:       1234,
		StreamerName: "streamer",
		AvatarURL:    "face.jpg",
		CoverURL:     "cover.jpg",
		KeyframeURL:  "key.jpg",
		AreaName:     "Games",
		LiveTime:     1700000000,
	}

	on := StatusPost(ActionTurnOn, st)
	assert.Equal(t, "live_1234_1700000000_1", on.ID)
	assert.Equal(t, "[Live] Speedrun", on.Title)
	assert.Equal(t, "Games", on.Body)
	assert.Equal(t, "https://live.bilibili.com/1234", on.URL)
	assert.Equal(t, []domain.Image{{URL: "cover.jpg"}}, on.Images)
	assert.Equal(t, domain.Author{Name: "streamer", AvatarURL: "face.jpg"}, on.Author)
	assert.Equal(t, int64(1700000000), on.Timestamp)
	assert.Equal(t, domain.CategoryLiveOn, on.Category)

	update := StatusPost(ActionTitleUpdate, st)
	assert.Equal(t, "[Title Update] Speedrun", update.Title)
	assert.Equal(t, []domain.Image{{URL: "key.jpg"}}, update.Images)

	st.KeyframeURL = ""
	off := StatusPost(ActionTurnOff, st)
	assert.Equal(t, "[Offline] Speedrun", off.Title)
	assert.Equal(t, []domain.Image{{URL: "cover.jpg"}}, off.Images)
	assert.Equal(t, domain.CategoryLiveOff, off.Category)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "turn_on", ActionTurnOn.String())
	assert.Equal(t, "title_update", ActionTitleUpdate.String())
	assert.Equal(t, "action(42)", Action(42).String())
}
