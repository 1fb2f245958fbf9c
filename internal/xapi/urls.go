package xapi

import "regexp"

// postURLPattern matches standard and legacy status links:
//
//	https://x.com/jack/status/20
//	https://mobile.twitter.com/jack/status/20?s=20
//	https://twitter.com/#!/jack/statuses/20
//	https://twitter.com/i/web/status/20
var postURLPattern = regexp.MustCompile(`(?:^|[/.])(?:twitter|x)\.com/(?:#!/)?(?:i/web|(\w+))/status(?:es)?/(\d+)`)

// ExtractPostID returns the numeric post ID from a status URL.
func ExtractPostID(rawURL string) (string, bool) {
	m := postURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// ExtractHandle returns the author handle segment of a status URL. Share
// links of the form /i/web/status/<id> carry no handle.
func ExtractHandle(rawURL string) (string, bool) {
	m := postURLPattern.FindStringSubmatch(rawURL)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}
