package util

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxFolderNameLen = 120

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}

// Fingerprint returns a stable identifier for a set of strings, independent
// of their order.
func Fingerprint(items []string) string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	joined := strings.Join(sorted, "\x00")

	return GetIDFromString(&joined)
}

// SanitizeName makes a course name safe for use as a folder name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeChars.ReplaceAllString(name, "")
	name = spaceRuns.ReplaceAllString(name, " ")
	if utf8.RuneCountInString(name) > maxFolderNameLen {
		name = string([]rune(name)[:maxFolderNameLen])
	}

	return name
}

// HumanSize formats a byte count for logs and reports.
func HumanSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
