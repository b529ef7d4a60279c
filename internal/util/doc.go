// Package util provides small helpers shared by the mcp-oauth-proxy packages.
//
// Key utilities:
//   - SafeTruncate: truncates codes and tokens to a loggable prefix
//   - NormalizeURL: strips trailing slashes from configured base URLs
package util
