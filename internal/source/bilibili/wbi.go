package bilibili

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

const wbiKeysTTL = time.Hour

var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// wbiKeys caches the signing keys published by the nav endpoint.
type wbiKeys struct {
	client    *Client
	navURL    string
	now       func() time.Time
	mu        sync.Mutex
	imgKey    string
	subKey    string
	fetchedAt time.Time
}

func newWBIKeys(client *Client, navURL string) *wbiKeys {
	return &wbiKeys{client: client, navURL: navURL, now: time.Now}
}

type navData struct {
	WbiImg struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

func (w *wbiKeys) get(ctx context.Context) (string, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.imgKey != "" && w.now().Sub(w.fetchedAt) < wbiKeysTTL {
		return w.imgKey, w.subKey, nil
	}

	// The nav endpoint answers -101 for anonymous sessions but still
	// carries the keys, so the envelope code is not checked.
	env, err := w.client.GetEnvelope(ctx, w.navURL, nil, nil)
	if err != nil {
		return "", "", fmt.Errorf("fetch wbi keys: %w", err)
	}
	var data navData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", "", fmt.Errorf("decode wbi keys: %w", err)
	}
	imgKey := keyFromURL(data.WbiImg.ImgURL)
	subKey := keyFromURL(data.WbiImg.SubURL)
	if imgKey == "" || subKey == "" {
		return "", "", fmt.Errorf("fetch wbi keys: missing wbi_img (%s)", env.Message)
	}

	w.imgKey, w.subKey, w.fetchedAt = imgKey, subKey, w.now()
	return imgKey, subKey, nil
}

func keyFromURL(raw string) string {
	base := path.Base(raw)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// SignWBI returns a copy of params carrying the wts and w_rid signature
// fields required by the signed endpoints.
func (c *Client) SignWBI(ctx context.Context, params url.Values) (url.Values, error) {
	imgKey, subKey, err := c.wbi.get(ctx)
	if err != nil {
		return nil, err
	}
	return signWBI(params, imgKey, subKey, c.wbi.now()), nil
}

func mixinKey(imgKey, subKey string) string {
	orig := imgKey + subKey
	var sb strings.Builder
	for _, i := range mixinKeyEncTab {
		if i < len(orig) {
			sb.WriteByte(orig[i])
		}
	}
	key := sb.String()
	if len(key) > 32 {
		key = key[:32]
	}
	return key
}

func signWBI(params url.Values, imgKey, subKey string, now time.Time) url.Values {
	signed := make(url.Values, len(params)+2)
	for k, vs := range params {
		if len(vs) == 0 {
			continue
		}
		signed.Set(k, stripWBIChars(vs[0]))
	}
	signed.Set("wts", strconv.FormatInt(now.Unix(), 10))

	// Encode sorts by key, which is the order the signature is computed over.
	query := signed.Encode()
	sum := md5.Sum([]byte(query + mixinKey(imgKey, subKey)))
	signed.Set("w_rid", hex.EncodeToString(sum[:]))
	return signed
}

func stripWBIChars(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune("!'()*", r) {
			return -1
		}
		return r
	}, s)
}
