package conversation

import (
	"encoding/json"
	"strings"
)

// ParsePlan extracts an ordered list of sub-actions from a model reply.
// A JSON array of strings anywhere in the reply wins. Otherwise numbered or
// bulleted lines are taken; when the reply has no list markers every
// non-empty line is a sub-action.
func ParsePlan(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return []string{}
	}

	if start := strings.Index(reply, "["); start >= 0 {
		if end := strings.LastIndex(reply, "]"); end > start {
			var actions []string
			if err := json.Unmarshal([]byte(reply[start:end+1]), &actions); err == nil {
				return compact(actions)
			}
		}
	}

	var marked, plain []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if item, ok := stripMarker(line); ok {
			marked = append(marked, item)
			continue
		}
		plain = append(plain, line)
	}
	if len(marked) > 0 {
		return compact(marked)
	}
	return compact(plain)
}

// stripMarker removes a leading "1." / "1)" / "-" / "*" / "•" list marker.
func stripMarker(line string) (string, bool) {
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, bullet) {
			return strings.TrimSpace(line[len(bullet):]), true
		}
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return "", false
	}
	if line[i] != '.' && line[i] != ')' {
		return "", false
	}
	return strings.TrimSpace(line[i+1:]), true
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
