package dynamic

import (
	"encoding/json"

	"bili_push/internal/source/bilibili"
)

// Dynamic types of the polymer feed.
const (
	TypeNone           = "DYNAMIC_TYPE_NONE"
	TypeForward        = "DYNAMIC_TYPE_FORWARD"
	TypeAV             = "DYNAMIC_TYPE_AV"
	TypeWord           = "DYNAMIC_TYPE_WORD"
	TypeDraw           = "DYNAMIC_TYPE_DRAW"
	TypeArticle        = "DYNAMIC_TYPE_ARTICLE"
	TypeLive           = "DYNAMIC_TYPE_LIVE"
	TypeLiveRcmd       = "DYNAMIC_TYPE_LIVE_RCMD"
	TypeCommonSquare   = "DYNAMIC_TYPE_COMMON_SQUARE"
	TypeCommonVertical = "DYNAMIC_TYPE_COMMON_VERTICAL"
)

// Major content types.
const (
	MajorArchive  = "MAJOR_TYPE_ARCHIVE"
	MajorDraw     = "MAJOR_TYPE_DRAW"
	MajorArticle  = "MAJOR_TYPE_ARTICLE"
	MajorLive     = "MAJOR_TYPE_LIVE"
	MajorLiveRcmd = "MAJOR_TYPE_LIVE_RCMD"
	MajorOpus     = "MAJOR_TYPE_OPUS"
)

const richTextTopic = "RICH_TEXT_NODE_TYPE_TOPIC"

// FeedData is the data payload of the polymer space feed. Items are kept raw
// so a malformed entry can be dropped without losing its siblings.
type FeedData struct {
	Items   []json.RawMessage `json:"items"`
	HasMore bool              `json:"has_more"`
	Offset  string            `json:"offset"`
}

type Item struct {
	IDStr   string  `json:"id_str"`
	Type    string  `json:"type"`
	Basic   Basic   `json:"basic"`
	Modules Modules `json:"modules"`
	Orig    *Item   `json:"orig,omitempty"`
}

type Basic struct {
	RidStr string `json:"rid_str"`
}

type Modules struct {
	Author  ModuleAuthor  `json:"module_author"`
	Dynamic ModuleDynamic `json:"module_dynamic"`
}

type ModuleAuthor struct {
	Mid     bilibili.FlexInt `json:"mid"`
	Name    string           `json:"name"`
	Face    string           `json:"face"`
	JumpURL string           `json:"jump_url"`
	PubTS   bilibili.FlexInt `json:"pub_ts"`
}

type ModuleDynamic struct {
	Desc  *Desc  `json:"desc"`
	Major *Major `json:"major"`
	Topic *Topic `json:"topic"`
}

type Desc struct {
	Text          string         `json:"text"`
	RichTextNodes []RichTextNode `json:"rich_text_nodes"`
}

type RichTextNode struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Topic struct {
	ID   bilibili.FlexInt `json:"id"`
	Name string           `json:"name"`
}

type Major struct {
	Type     string    `json:"type"`
	Archive  *Archive  `json:"archive,omitempty"`
	Draw     *Draw     `json:"draw,omitempty"`
	Article  *Article  `json:"article,omitempty"`
	Live     *Live     `json:"live,omitempty"`
	LiveRcmd *LiveRcmd `json:"live_rcmd,omitempty"`
	Opus     *Opus     `json:"opus,omitempty"`
}

type Archive struct {
	Bvid    string `json:"bvid"`
	Title   string `json:"title"`
	Desc    string `json:"desc"`
	Cover   string `json:"cover"`
	JumpURL string `json:"jump_url"`
}

type Draw struct {
	Title string     `json:"title"`
	Items []DrawItem `json:"items"`
}

type DrawItem struct {
	Src         string `json:"src"`
	Description string `json:"description"`
}

type Article struct {
	Title   string   `json:"title"`
	Desc    string   `json:"desc"`
	Covers  []string `json:"covers"`
	JumpURL string   `json:"jump_url"`
}

type Live struct {
	Title      string `json:"title"`
	DescFirst  string `json:"desc_first"`
	DescSecond string `json:"desc_second"`
	Cover      string `json:"cover"`
	JumpURL    string `json:"jump_url"`
}

// LiveRcmd carries its payload as a JSON document inside a string.
type LiveRcmd struct {
	Content string `json:"content"`
}

type LiveRcmdContent struct {
	LivePlayInfo struct {
		Title          string `json:"title"`
		Cover          string `json:"cover"`
		Link           string `json:"link"`
		AreaName       string `json:"area_name"`
		ParentAreaName string `json:"parent_area_name"`
	} `json:"live_play_info"`
}

type Opus struct {
	Title   string `json:"title"`
	Summary struct {
		Text string `json:"text"`
	} `json:"summary"`
	Pics []struct {
		URL string `json:"url"`
	} `json:"pics"`
	JumpURL string `json:"jump_url"`
}

// HistoryData is the data payload of the legacy space_history endpoint.
type HistoryData struct {
	Cards []HistoryCard `json:"cards"`
}

// HistoryCard pairs the legacy descriptor with its card, which is itself a
// JSON document encoded as a string.
type HistoryCard struct {
	Desc json.RawMessage `json:"desc"`
	Card string          `json:"card"`
}
