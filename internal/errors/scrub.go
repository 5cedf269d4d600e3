package errors

import "regexp"

type scrubRule struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order. Query strings go first so key=value pairs inside them
// are dropped whole.
var scrubRules = []scrubRule{
	{regexp.MustCompile(`(https?://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`(://)[^/@\s]+@`), "$1[REDACTED]@"},
	{regexp.MustCompile(`(?i)(bearer\s+)\S+`), "$1[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|password)([=:]\s*)\S+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`), "[REDACTED]"},
}

// ScrubMessage strips credentials from free text: URL query strings, URL
// userinfo, bearer tokens, key=value secrets and long hex strings.
func ScrubMessage(message string) string {
	for _, r := range scrubRules {
		message = r.re.ReplaceAllString(message, r.repl)
	}
	return message
}
