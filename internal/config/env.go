package config

import "strings"

// DefaultEnvPrefix is the prefix for all environment variables consumed by
// the watcher.
const DefaultEnvPrefix = "IMGC_"

// CanonicalKey normalizes an option or namespace name for key derivation:
// lowercased with underscores and dots replaced by hyphens. "jpeg_quality"
// and "jpeg-quality" refer to the same option.
func CanonicalKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, ".", "-")
	return key
}

// envSegment converts a name into its environment-variable form:
// uppercased with hyphens and dots replaced by underscores.
// "jpeg-quality" becomes "JPEG_QUALITY".
func envSegment(name string) string {
	seg := strings.ToUpper(strings.TrimSpace(name))
	seg = strings.ReplaceAll(seg, "-", "_")
	seg = strings.ReplaceAll(seg, ".", "_")
	return seg
}
