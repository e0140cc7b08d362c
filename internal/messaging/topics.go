package messaging

import "strings"

// Topic layout under the configured prefix:
//
//	<prefix>/<serial>/command     requests in
//	<prefix>/<serial>/response    results out
//	<prefix>/<serial>/invalidate  drop the cached session
const (
	suffixCommand    = "command"
	suffixResponse   = "response"
	suffixInvalidate = "invalidate"
)

func CommandTopic(prefix string) string    { return prefix + "/+/" + suffixCommand }
func InvalidateTopic(prefix string) string { return prefix + "/+/" + suffixInvalidate }

func ResponseTopic(prefix, serial string) string {
	return prefix + "/" + serial + "/" + suffixResponse
}

// ParseTopic splits <prefix>/<serial>/<kind>. ok is false for anything else.
func ParseTopic(prefix, topic string) (serial, kind string, ok bool) {
	rest := strings.TrimPrefix(topic, prefix+"/")
	if rest == topic {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
