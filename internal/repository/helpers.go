package repository

import (
	"encoding/json"
	"strings"
)

func marshalPayload(payload map[string]any) (json.RawMessage, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(payload)
}

// quoteIdentifier escapes a descriptor-supplied table or column name for use in
// dynamically assembled SQL.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func truncateDiagnostic(msg string) string {
	const maxLen = 512
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
