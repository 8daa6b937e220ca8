package channel

import (
	"encoding/json"
	"strings"
)

// parseReply normalizes raw channel output. Channels are external
// processes whose output is untrusted text: first try to parse it as
// JSON, then recover the first balanced JSON fragment from the noise,
// and only then give up and wrap the raw text as an error result.
func parseReply(raw []byte) Result {
	obj, ok := decodeObject(raw)
	if !ok {
		if fragment, found := extractBalanced(string(raw)); found {
			obj, ok = decodeObject([]byte(fragment))
		}
	}
	if !ok {
		return Result{
			Status:       StatusError,
			Payload:      string(raw),
			ErrorMessage: "unparseable channel output",
		}
	}

	// A reply envelope carries an explicit success flag; any other
	// JSON object is taken as a successful bare payload.
	if successRaw, isEnvelope := obj["success"]; isEnvelope {
		var success bool
		_ = json.Unmarshal(successRaw, &success)
		if !success {
			errMsg := "channel reported failure"
			if e, ok := obj["error"]; ok {
				var s string
				if json.Unmarshal(e, &s) == nil && s != "" {
					errMsg = s
				}
			}
			return Result{Status: StatusError, ErrorMessage: errMsg}
		}

		var output string
		if o, ok := obj["output"]; ok {
			if json.Unmarshal(o, &output) != nil {
				output = string(o) // structured output, keep as JSON
			}
		}
		return Result{Status: StatusOK, Payload: output}
	}

	compact, err := json.Marshal(obj)
	if err != nil {
		return Result{
			Status:       StatusError,
			Payload:      string(raw),
			ErrorMessage: "unparseable channel output",
		}
	}
	return Result{Status: StatusOK, Payload: string(compact)}
}

func decodeObject(data []byte) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractBalanced returns the first balanced {...} fragment in raw,
// honoring string literals and escapes.
func extractBalanced(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}
