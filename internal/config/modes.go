package config

import (
	"fmt"
	"strings"
)

const (
	CacheOff    = "off"
	CacheMemory = "memory"
	CacheDisk   = "disk"
)

// NormalizeCacheMode maps a configured cache mode onto one of the Cache*
// constants. Empty selects memory.
func NormalizeCacheMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	if mode == "" {
		mode = CacheMemory
	}

	switch mode {
	case CacheOff, CacheMemory, CacheDisk:
		return mode, nil
	case "none", "false":
		return CacheOff, nil
	default:
		return "", fmt.Errorf("invalid cache mode %q (expected %s|%s|%s)", raw, CacheOff, CacheMemory, CacheDisk)
	}
}

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// NormalizeLogFormat accepts json or text. Empty selects json.
func NormalizeLogFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	switch format {
	case "", LogFormatJSON:
		return LogFormatJSON, nil
	case LogFormatText, "console":
		return LogFormatText, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected %s|%s)", raw, LogFormatJSON, LogFormatText)
	}
}
