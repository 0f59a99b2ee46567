package dynamic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bili_push/internal/source/bilibili"
)

// Legacy numeric card types.
var legacyTypes = map[int64]string{
	1:  TypeForward,
	2:  TypeDraw,
	4:  TypeWord,
	8:  TypeAV,
	11: TypeDraw,
	12: TypeArticle,
	64: TypeArticle,
}

// fields is a loosely typed JSON object. Lookups take dotted paths and try
// each candidate in turn, returning the first non-empty value.
type fields map[string]any

func decodeFields(data []byte) (fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f fields
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) lookup(path string) (any, bool) {
	var cur any = map[string]any(f)
	for _, key := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func (f fields) has(path string) bool {
	_, ok := f.lookup(path)
	return ok
}

func (f fields) str(paths ...string) string {
	for _, p := range paths {
		v, _ := f.lookup(p)
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case json.Number:
			if s != "0" {
				return s.String()
			}
		}
	}
	return ""
}

func (f fields) int(paths ...string) int64 {
	for _, p := range paths {
		v, _ := f.lookup(p)
		var n int64
		switch x := v.(type) {
		case json.Number:
			n, _ = x.Int64()
		case string:
			n, _ = strconv.ParseInt(x, 10, 64)
		}
		if n != 0 {
			return n
		}
	}
	return 0
}

func (f fields) list(paths ...string) []any {
	for _, p := range paths {
		v, _ := f.lookup(p)
		if l, ok := v.([]any); ok && len(l) > 0 {
			return l
		}
	}
	return nil
}

func (f fields) sub(path string) fields {
	v, _ := f.lookup(path)
	m, _ := asMap(v)
	return m
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case fields:
		return m, true
	}
	return nil, false
}

// legacyDesc is the descriptor half of a legacy card.
type legacyDesc struct {
	Type      int64
	OrigType  int64
	DynamicID string
	OrigID    string
	Rid       string
	Bvid      string
	Timestamp int64
	User      fields
}

func newLegacyDesc(d fields) legacyDesc {
	return legacyDesc{
		Type:      d.int("type"),
		OrigType:  d.int("orig_type"),
		DynamicID: d.str("dynamic_id_str", "dynamic_id"),
		OrigID:    d.str("orig_dy_id_str", "orig_dy_id"),
		Rid:       d.str("rid_str", "rid"),
		Bvid:      d.str("bvid"),
		Timestamp: d.int("timestamp"),
		User:      d.sub("user_profile.info"),
	}
}

// legacyItem maps a legacy card into the polymer item shape. Forwarded
// cards recurse into their origin when depth allows.
func (s *Source) legacyItem(desc legacyDesc, card fields, depth int) *Item {
	rawType := desc.Type
	if rawType == 0 {
		rawType = inferLegacyType(card)
	}
	dynType, ok := legacyTypes[rawType]
	if !ok {
		dynType = TypeWord
	}

	user := desc.User
	if len(user) == 0 {
		user = card.sub("user")
	}
	pubTS := desc.Timestamp
	if pubTS == 0 {
		pubTS = card.int("item.upload_time", "pubdate", "ctime")
	}

	item := &Item{
		IDStr: desc.DynamicID,
		Type:  dynType,
		Basic: Basic{RidStr: desc.Rid},
		Modules: Modules{
			Author: ModuleAuthor{
				Mid:   bilibili.FlexInt(user.int("uid")),
				Name:  user.str("uname", "name"),
				Face:  user.str("face", "head_url"),
				PubTS: bilibili.FlexInt(pubTS),
			},
		},
	}
	item.Modules.Author.JumpURL = fmt.Sprintf("https://space.bilibili.com/%d", item.Modules.Author.Mid)

	var major *Major
	var text string

	switch dynType {
	case TypeAV:
		bvid := desc.Bvid
		if bvid == "" {
			bvid = card.str("bvid")
		}
		major = &Major{Type: MajorArchive, Archive: &Archive{
			Bvid:    bvid,
			Title:   card.str("title"),
			Desc:    card.str("desc"),
			Cover:   card.str("pic"),
			JumpURL: "https://www.bilibili.com/video/" + bvid,
		}}
		text = card.str("dynamic")

	case TypeDraw:
		major = &Major{Type: MajorDraw, Draw: &Draw{
			Title: card.str("item.title", "title"),
			Items: legacyPictures(card),
		}}
		text = card.str("item.description", "item.content", "desc")

	case TypeWord:
		text = card.str("item.content", "item.description", "dynamic")
		if pics := legacyPictures(card); len(pics) > 0 {
			item.Type = TypeDraw
			major = &Major{Type: MajorDraw, Draw: &Draw{Items: pics}}
		}

	case TypeArticle:
		var covers []string
		for _, c := range card.list("image_urls") {
			if s, ok := c.(string); ok {
				covers = append(covers, s)
			}
		}
		major = &Major{Type: MajorArticle, Article: &Article{
			Title:   card.str("title"),
			Desc:    card.str("summary"),
			Covers:  covers,
			JumpURL: "https://www.bilibili.com/read/cv" + desc.Rid,
		}}

	case TypeForward:
		text = card.str("item.content", "dynamic", "desc")
		if depth > 0 {
			orig, err := s.legacyOrigin(desc, card, depth-1)
			if err != nil {
				s.logger.Warn("failed to parse forwarded card", "dynamic_id", desc.DynamicID, "error", err)
			}
			item.Orig = orig
		}
	}

	if text == "" {
		text = card.str("dynamic", "desc", "summary", "title", "content")
	}

	item.Modules.Dynamic = ModuleDynamic{Desc: &Desc{Text: text}, Major: major}
	return item
}

func (s *Source) legacyOrigin(desc legacyDesc, card fields, depth int) (*Item, error) {
	raw := card.str("origin")
	if raw == "" {
		return nil, nil
	}
	origin, err := decodeFields([]byte(raw))
	if err != nil {
		return nil, err
	}

	origType := desc.OrigType
	if origType == 0 {
		origType = card.int("item.orig_type")
	}
	if origType == 0 {
		origType = inferLegacyType(origin)
	}

	origDesc := legacyDesc{
		Type:      origType,
		DynamicID: desc.OrigID,
		Rid:       origin.str("rid", "id", "aid"),
		Bvid:      origin.str("bvid"),
		Timestamp: origin.int("item.upload_time", "pubdate", "ctime"),
		User:      origin.sub("user"),
	}
	for _, key := range []string{"author", "owner"} {
		if len(origDesc.User) == 0 {
			origDesc.User = origin.sub(key)
		}
	}
	if origDesc.DynamicID == "" && origDesc.Rid == "" {
		return nil, errors.New("origin has no id")
	}
	return s.legacyItem(origDesc, origin, depth), nil
}

func inferLegacyType(card fields) int64 {
	switch {
	case card.has("aid"):
		return 8
	case card.has("item.pictures"):
		return 2
	case card.has("item.upload_time"):
		return 4
	}
	return 0
}

func legacyPictures(card fields) []DrawItem {
	var items []DrawItem
	for _, p := range card.list("item.pictures", "item.images", "pics") {
		pic, ok := asMap(p)
		if !ok {
			continue
		}
		if src, _ := pic["img_src"].(string); src != "" {
			items = append(items, DrawItem{Src: src})
		}
	}
	return items
}
