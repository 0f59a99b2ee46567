package live

import (
	"fmt"

	"bili_push/internal/domain"
)

// Action is the transition between two consecutive observations of a room.
type Action int

const (
	ActionOff Action = iota
	ActionOn
	ActionTurnOn
	ActionTurnOff
	ActionTitleUpdate
)

func (a Action) String() string {
	switch a {
	case ActionOff:
		return "off"
	case ActionOn:
		return "on"
	case ActionTurnOn:
		return "turn_on"
	case ActionTurnOff:
		return "turn_off"
	case ActionTitleUpdate:
		return "title_update"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Category returns the post category a transition is announced under, or
// false for the steady states.
func (a Action) Category() (domain.Category, bool) {
	switch a {
	case ActionTurnOn:
		return domain.CategoryLiveOn, true
	case ActionTitleUpdate:
		return domain.CategoryLiveTitleUpdate, true
	case ActionTurnOff:
		return domain.CategoryLiveOff, true
	}
	return 0, false
}

func (a Action) label() string {
	switch a {
	case ActionTurnOn:
		return "Live"
	case ActionTitleUpdate:
		return "Title Update"
	case ActionTurnOff:
		return "Offline"
	}
	return ""
}

// DeriveAction classifies the change from old to cur. It depends only on
// the live flags and titles of both observations.
func DeriveAction(old, cur domain.LiveStatus) Action {
	switch {
	case !old.IsLive && cur.IsLive:
		return ActionTurnOn
	case old.IsLive && !cur.IsLive:
		return ActionTurnOff
	case old.IsLive && cur.IsLive && old.Title != cur.Title:
		return ActionTitleUpdate
	case old.IsLive && cur.IsLive:
		return ActionOn
	default:
		return ActionOff
	}
}

// CompareStatus returns the announcement for the transition from old to
// cur: exactly one post for a turn-on, title update or turn-off, none
// otherwise.
func CompareStatus(old, cur domain.LiveStatus) []domain.Post {
	action := DeriveAction(old, cur)
	if _, ok := action.Category(); !ok {
		return nil
	}
	return []domain.Post{StatusPost(action, cur)}
}

// StatusPost renders a room status as a post announcing action.
func StatusPost(action Action, status domain.LiveStatus) domain.Post {
	category, _ := action.Category()

	image := status.CoverURL
	if action != ActionTurnOn && status.KeyframeURL != "" {
		image = status.KeyframeURL
	}

	return domain.Post{
		Kind:      domain.SourceStatus,
		ID:        fmt.Sprintf("live_%d_%d_%d", status.RoomID, status.LiveTime, status.LiveState),
		Title:     fmt.Sprintf("[%s] %s", action.label(), status.Title),
		Body:      status.AreaName,
		Images:    domain.ImageURLs(image),
		Author:    domain.Author{Name: status.StreamerName, AvatarURL: status.AvatarURL},
		Timestamp: status.LiveTime,
		URL:       fmt.Sprintf("https://live.bilibili.com/%d", status.RoomID),
		Category:  category,
	}
}
