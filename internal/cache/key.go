package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/routefs/routefs/internal/util"
)

// maxRawKeyLength bounds unhashed keys; longer fingerprints are hashed
// so that redis keys stay predictable.
const maxRawKeyLength = 200

// KeyConfig describes the request fingerprint for one cached route:
// method and normalized path always participate, the vary lists add
// selected headers and query parameters.
type KeyConfig struct {
	VaryHeaders []string
	VaryQuery   []string
}

// BuildKey computes the cache key for a request.
func BuildKey(r *http.Request, cfg KeyConfig) string {
	parts := []string{r.Method, util.NormalizePath(r.URL.Path)}

	if q := queryPart(r.URL.Query(), cfg.VaryQuery); q != "" {
		parts = append(parts, q)
	}
	if h := headerPart(r.Header, cfg.VaryHeaders); h != "" {
		parts = append(parts, h)
	}

	key := strings.Join(parts, ":")
	if len(key) > maxRawKeyLength {
		return HashKey(key)
	}
	return key
}

// queryPart builds the query fragment of the key, sorted for a stable
// fingerprint regardless of configuration order.
func queryPart(query url.Values, varyQuery []string) string {
	if len(varyQuery) == 0 {
		return ""
	}

	names := append([]string(nil), varyQuery...)
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		for _, v := range query[name] {
			parts = append(parts, name+"="+v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "q:" + strings.Join(parts, "&")
}

// headerPart builds the header fragment of the key.
func headerPart(header http.Header, varyHeaders []string) string {
	if len(varyHeaders) == 0 {
		return ""
	}

	names := make([]string, 0, len(varyHeaders))
	for _, name := range varyHeaders {
		names = append(names, http.CanonicalHeaderKey(name))
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		for _, v := range header.Values(name) {
			parts = append(parts, name+"="+v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "h:" + strings.Join(parts, "&")
}

// HashKey hashes a key to a fixed length.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
