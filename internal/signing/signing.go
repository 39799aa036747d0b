// Package signing implements the request signature both commerce platforms
// require: HMAC-SHA256 keyed by the app secret over app key, timestamp,
// request path, sorted query parameters, and body.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Signer produces per-request signatures for one platform's credentials.
type Signer struct {
	AppKey    string
	AppSecret string
	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func New(appKey, appSecret string) *Signer {
	return &Signer{AppKey: appKey, AppSecret: appSecret, Now: time.Now}
}

// Sign returns the hex signature and the unix timestamp it covers. The
// timestamp is taken fresh on every call; a replayed signature goes stale
// with it.
func (s *Signer) Sign(path string, query url.Values, body []byte) (sig string, timestamp string) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	timestamp = strconv.FormatInt(now().Unix(), 10)
	return s.signAt(path, query, body, timestamp), timestamp
}

// signAt signs with an explicit timestamp. Split out so tests can pin time.
func (s *Signer) signAt(path string, query url.Values, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(s.AppSecret))
	mac.Write([]byte(s.AppKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(path))
	mac.Write([]byte(canonicalQuery(query)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign for the given timestamp.
func (s *Signer) Verify(path string, query url.Values, body []byte, timestamp, provided string) bool {
	expected := s.signAt(path, query, body, timestamp)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	e, _ := hex.DecodeString(expected)
	return hmac.Equal(e, b)
}

// canonicalQuery renders query parameters sorted by key (then value) so the
// signature is independent of map iteration order.
func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(v)
			b.WriteString("&")
		}
	}
	return strings.TrimSuffix(b.String(), "&")
}
