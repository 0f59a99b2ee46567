package domain

type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentImage SegmentKind = "image"
)

// Segment is one piece of a rendered notification.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image *Image      `json:"image,omitempty"`
}

func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

func ImageSegment(img Image) Segment {
	return Segment{Kind: SegmentImage, Image: &img}
}
