package queue

import (
	"fmt"
	"strings"
)

func VideoSubject(videoID string) string {
	return fmt.Sprintf("%s.%s", VideosSubjectBase, videoID)
}

// JobMsgID is the JetStream dedupe id of a video's run request.
func JobMsgID(videoID string) string {
	return "run-" + videoID
}

func AlertSubject(kind, id string) string {
	return fmt.Sprintf("%s.%s.%s", AlertsSubjectBase, kind, id)
}

// ParseAlertSubject splits "alerts.<kind>.<id>".
func ParseAlertSubject(subject string) (kind, id string, ok bool) {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) != 3 || parts[0] != AlertsSubjectBase || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
