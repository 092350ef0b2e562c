package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type offsetCursor struct {
	Offset int `json:"o"`
}

// EncodeOffset serialises an offset into a base64 URL-safe page token. Offset zero encodes
// to the empty token.
func EncodeOffset(offset int) string {
	if offset <= 0 {
		return ""
	}
	data, _ := json.Marshal(offsetCursor{Offset: offset})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeOffset parses a page token produced by EncodeOffset.
func DecodeOffset(token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor offsetCursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.Offset < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidPageToken)
	}
	return cursor.Offset, nil
}
