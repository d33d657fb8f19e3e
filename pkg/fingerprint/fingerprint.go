// Package fingerprint produces short content digests used by the sync
// protocol to detect change without diffing full content. The digest is a
// cheap equality check, not an integrity or security control.
package fingerprint

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Of returns the hex xxhash64 digest of content.
func Of(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}

// Matches reports whether content hashes to fp. An empty fp never matches,
// so "no fingerprint yet" always reads as changed.
func Matches(content, fp string) bool {
	return fp != "" && Of(content) == fp
}
