package dynamic

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"bili_push/internal/domain"
	"bili_push/internal/source/bilibili"
)

const postURLPrefix = "https://t.bilibili.com/"

type parsedMajor struct {
	title string
	body  string
	pics  []string
	url   string
}

// toPost maps a feed item into a canonical post. Forwarded items carry their
// original one level deep.
func toPost(item *Item) (domain.Post, error) {
	post, err := itemPost(item)
	if err != nil {
		return domain.Post{}, err
	}

	post.Category = CategoryOf(item.Type)
	post.Tags = itemTags(item)

	if post.Category == domain.CategoryRepost && item.Orig != nil && item.Orig.Type != TypeNone {
		orig, err := itemPost(item.Orig)
		if err != nil {
			return domain.Post{}, fmt.Errorf("parse forwarded item: %w", err)
		}
		orig.Category = CategoryOf(item.Orig.Type)
		post.Repost = &orig
	}
	return post, nil
}

func itemPost(item *Item) (domain.Post, error) {
	id := itemID(item)
	if id == "" {
		return domain.Post{}, &bilibili.SchemaError{Item: item.Type, Err: errors.New("missing id")}
	}

	major, err := parseMajor(item)
	if err != nil {
		return domain.Post{}, &bilibili.SchemaError{Item: id, Err: err}
	}

	author := item.Modules.Author
	return domain.Post{
		Kind:      domain.SourceFeed,
		ID:        id,
		Title:     major.title,
		Body:      major.body,
		Images:    domain.ImageURLs(major.pics...),
		Author:    domain.Author{Name: author.Name, AvatarURL: author.Face},
		Timestamp: int64(author.PubTS),
		URL:       major.url,
	}, nil
}

func itemID(item *Item) string {
	if item.IDStr != "" {
		return item.IDStr
	}
	return item.Basic.RidStr
}

func parseMajor(item *Item) (parsedMajor, error) {
	dyn := item.Modules.Dynamic
	var descText string
	if dyn.Desc != nil {
		descText = dyn.Desc.Text
	}
	fallback := parsedMajor{body: descText, url: postURLPrefix + itemID(item)}

	major := dyn.Major
	if major == nil {
		return fallback, nil
	}

	switch {
	case major.Archive != nil:
		a := major.Archive
		return parsedMajor{
			title: a.Title,
			body:  mergeText(a.Title, a.Desc, descText),
			pics:  []string{a.Cover},
			url:   httpsURL(a.JumpURL),
		}, nil

	case major.LiveRcmd != nil:
		var content LiveRcmdContent
		if err := json.Unmarshal([]byte(major.LiveRcmd.Content), &content); err != nil {
			return parsedMajor{}, fmt.Errorf("decode live_rcmd content: %w", err)
		}
		info := content.LivePlayInfo
		link := httpsURL(info.Link)
		if u, err := url.Parse(link); err == nil {
			u.RawQuery = ""
			link = u.String()
		}
		return parsedMajor{
			title: info.Title,
			body:  info.ParentAreaName + " " + info.AreaName,
			pics:  []string{info.Cover},
			url:   link,
		}, nil

	case major.Live != nil:
		l := major.Live
		return parsedMajor{
			title: l.Title,
			body:  l.DescFirst + "\n" + l.DescSecond,
			pics:  []string{l.Cover},
			url:   httpsURL(l.JumpURL),
		}, nil

	case major.Draw != nil:
		text := descText
		if text == "" {
			var parts []string
			for _, it := range major.Draw.Items {
				if it.Description != "" {
					parts = append(parts, it.Description)
				}
			}
			text = strings.Join(parts, "\n")
		}
		title := major.Draw.Title
		if title == "" {
			title = synthesizeTitle(text)
		}
		pics := make([]string, 0, len(major.Draw.Items))
		for _, it := range major.Draw.Items {
			pics = append(pics, it.Src)
		}
		return parsedMajor{title: title, body: text, pics: pics, url: fallback.url}, nil

	case major.Article != nil:
		a := major.Article
		return parsedMajor{
			title: a.Title,
			body:  a.Desc,
			pics:  a.Covers,
			url:   httpsURL(a.JumpURL),
		}, nil

	case major.Opus != nil:
		o := major.Opus
		text := o.Summary.Text
		title := o.Title
		if title == "" {
			title = synthesizeTitle(text)
		}
		pics := make([]string, 0, len(o.Pics))
		for _, p := range o.Pics {
			pics = append(pics, p.URL)
		}
		link := httpsURL(o.JumpURL)
		if link == "" {
			link = fallback.url
		}
		return parsedMajor{title: title, body: text, pics: pics, url: link}, nil
	}

	return fallback, nil
}

func itemTags(item *Item) []string {
	var tags []string
	dyn := item.Modules.Dynamic
	if dyn.Topic != nil && dyn.Topic.Name != "" {
		tags = append(tags, dyn.Topic.Name)
	}
	if dyn.Desc != nil {
		for _, node := range dyn.Desc.RichTextNodes {
			if node.Type == richTextTopic {
				tags = append(tags, strings.Trim(node.Text, "#"))
			}
		}
	}
	return tags
}

// httpsURL forces the https scheme, including on protocol-relative links.
func httpsURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = "https"
	return u.String()
}
