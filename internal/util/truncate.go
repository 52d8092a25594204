package util

import "fmt"

// DefaultLogMaxLen bounds provider response bodies quoted in errors and logs.
const DefaultLogMaxLen = 256

// TruncateLog truncates long strings for logging.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog for []byte with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// MaskSecret keeps only the tail of a credential so log lines can be correlated.
func MaskSecret(s string) string {
	if len(s) < 20 {
		return "***"
	}
	return "..." + s[len(s)-6:]
}
