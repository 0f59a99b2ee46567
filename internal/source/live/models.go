package live

import (
	"bili_push/internal/domain"
	"bili_push/internal/source/bilibili"
)

// Room live_status values.
const (
	StateOff   = domain.LiveStateOff
	StateLive  = domain.LiveStateLive
	StateCycle = domain.LiveStateCycle
)

// StatusInfo is one entry of the get_status_info_by_uids response, keyed by
// uid in the data object.
type StatusInfo struct {
	Title      string           `json:"title"`
	RoomID     bilibili.FlexInt `json:"room_id"`
	UID        bilibili.FlexInt `json:"uid"`
	LiveTime   bilibili.FlexInt `json:"live_time"`
	LiveStatus int              `json:"live_status"`
	AreaName   string           `json:"area_v2_name"`
	Uname      string           `json:"uname"`
	Face       string           `json:"face"`
	Cover      string           `json:"cover_from_user"`
	Keyframe   string           `json:"keyframe"`
}
