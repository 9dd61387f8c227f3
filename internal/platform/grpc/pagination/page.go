// Package pagination normalizes list request paging parameters.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// EncodeSeqToken turns a keyset cursor over an integer sequence into an opaque
// page token.
func EncodeSeqToken(seq int64) string {
	if seq <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte("seq:" + strconv.FormatInt(seq, 10)))
}

// DecodeSeqToken reverses EncodeSeqToken. An empty token decodes to zero.
func DecodeSeqToken(token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("invalid page token: %w", err)
	}
	value, ok := strings.CutPrefix(string(raw), "seq:")
	if !ok {
		return 0, fmt.Errorf("invalid page token")
	}
	seq, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid page token")
	}
	return seq, nil
}

// EncodeKeyToken turns a keyset cursor over a string key into an opaque page
// token.
func EncodeKeyToken(key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte("key:" + key))
}

// DecodeKeyToken reverses EncodeKeyToken. An empty token decodes to "".
func DecodeKeyToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid page token: %w", err)
	}
	key, ok := strings.CutPrefix(string(raw), "key:")
	if !ok || key == "" {
		return "", fmt.Errorf("invalid page token")
	}
	return key, nil
}
