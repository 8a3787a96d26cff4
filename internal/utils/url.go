package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURLs returns every http(s) substring of content.
func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// HostOf parses a raw URL and returns its lowercase ASCII host, with
// internationalized hosts folded to punycode so list matching is stable.
func HostOf(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	if asciiHost, err := idna.ToASCII(host); err == nil {
		host = asciiHost
	}
	return host, nil
}
