package util

import "strings"

// SafeTruncate returns at most the first maxLen bytes of s.
// Codes and tokens are logged through it so that only a short prefix ever reaches the logs.
// A negative maxLen yields an empty string.
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
//	SafeTruncate("short", 10)                  // "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL removes trailing slashes so that "https://example.com/" and
// "https://example.com" compare equal and can be joined with absolute paths.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

// JoinURL appends an absolute path to a base URL, normalizing the slash between them.
//
//	JoinURL("https://auth.example.com/", "/oauth/token") // "https://auth.example.com/oauth/token"
func JoinURL(base, path string) string {
	if path == "" {
		return NormalizeURL(base)
	}
	return NormalizeURL(base) + "/" + strings.TrimLeft(path, "/")
}
