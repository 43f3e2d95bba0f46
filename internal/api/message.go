package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BrokerMessage extracts a code and human-readable message from an error
// body. It understands flat objects ({"code","message"}), problem-details
// ({"title","detail"}) and an "errors" list of objects or strings. When the
// body is not JSON the trimmed text is returned as the message.
func BrokerMessage(body []byte) (code, message string) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", ""
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		var s string
		if json.Unmarshal(body, &s) == nil {
			return "", s
		}
		return "", text
	}

	code = firstString(obj, "code", "errorCode", "status")
	message = firstString(obj, "message", "msg", "detail", "title", "error", "errorMessage")

	if list, ok := obj["errors"].([]any); ok && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case string:
				parts = append(parts, v)
			case map[string]any:
				if code == "" {
					code = firstString(v, "code", "errorCode")
				}
				if m := firstString(v, "message", "msg", "description"); m != "" {
					parts = append(parts, m)
				}
			}
		}
		if len(parts) > 0 {
			joined := strings.Join(parts, "; ")
			if message == "" {
				message = joined
			} else {
				message += ": " + joined
			}
		}
	}

	if message == "" {
		message = text
	}
	return code, message
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
