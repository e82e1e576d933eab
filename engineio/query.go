package engineio

import (
	"net/url"
	"strings"
)

// EncodeQuery renders q as application/x-www-form-urlencoded, then applies
// two deviations from net/url's default encoding: every "+" that
// url.Values.Encode produced for a space is rewritten as "%20", and the
// characters ! ' ( ) ~ are un-percent-encoded wherever they appear escaped.
func EncodeQuery(q url.Values) string {
	encoded := q.Encode()
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	replacements := []struct{ from, to string }{
		{"%21", "!"},
		{"%27", "'"},
		{"%28", "("},
		{"%29", ")"},
		{"%7E", "~"},
	}
	for _, r := range replacements {
		encoded = strings.ReplaceAll(encoded, r.from, r.to)
	}
	return encoded
}
