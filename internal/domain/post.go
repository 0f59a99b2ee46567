package domain

// SourceKind distinguishes feed-based sources from status-based ones.
type SourceKind string

const (
	SourceFeed   SourceKind = "dynamic"
	SourceStatus SourceKind = "live"
)

// Platform returns the name reported to the delivery sink for posts of this kind.
func (k SourceKind) Platform() string {
	if k == SourceStatus {
		return "bilibili-live"
	}
	return "bilibili"
}

func (k SourceKind) Valid() bool {
	return k == SourceFeed || k == SourceStatus
}

type Category int

// Feed categories.
const (
	CategoryGeneral  Category = 1
	CategoryArticle  Category = 2
	CategoryVideo    Category = 3
	CategoryText     Category = 4
	CategoryRepost   Category = 5
	CategoryLivePush Category = 6
	CategoryUnknown  Category = 99
)

// Live status categories.
const (
	CategoryLiveOn          Category = 1
	CategoryLiveTitleUpdate Category = 2
	CategoryLiveOff         Category = 3
)

type Author struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Image is either a remote URL or inline bytes.
type Image struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Post is the canonical form every source normalizes into. ID is stable
// across repeated fetches of the same upstream event.
type Post struct {
	Kind      SourceKind `json:"kind"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Images    []Image    `json:"images,omitempty"`
	Author    Author     `json:"author"`
	Timestamp int64      `json:"timestamp"`
	URL       string     `json:"url"`
	Category  Category   `json:"category"`
	Tags      []string   `json:"tags,omitempty"`
	Repost    *Post      `json:"repost,omitempty"`
}

// ImageURLs wraps plain URLs as images, skipping empty ones.
func ImageURLs(urls ...string) []Image {
	images := make([]Image, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			images = append(images, Image{URL: u})
		}
	}
	return images
}
