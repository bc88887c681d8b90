package mvv

import (
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// percentEncode escapes s for use inside a query value. Spaces become %20
// rather than '+', and the characters in keep are left as they are.
func percentEncode(s, keep string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	for _, r := range keep {
		enc := url.QueryEscape(string(r))
		if enc != string(r) {
			escaped = strings.ReplaceAll(escaped, enc, string(r))
		}
	}
	return escaped
}

// encodeStopID keeps ':' literal; the departures endpoint matches on it.
func encodeStopID(stopID string) string {
	return percentEncode(stopID, ":")
}

// encodeLines serializes route ids the way the departures endpoint expects:
// "&line=<id>" per id, percent-encoded, then standard base64. Ids are sorted
// so identical selections produce identical requests.
func encodeLines(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, id := range sorted {
		b.WriteString("&line=")
		b.WriteString(percentEncode(id, ""))
	}
	return base64.StdEncoding.EncodeToString([]byte(b.String()))
}

// decodeLines reverses encodeLines.
func decodeLines(encoded string) ([]string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, part := range strings.Split(string(raw), "&line=") {
		if part == "" {
			continue
		}
		id, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
