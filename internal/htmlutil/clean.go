// Package htmlutil cleans user-entered free text before it is stored.
package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// CleanFreeText normalises a user-entered note. Markup pasted into a note is
// reduced to its text with entities decoded; plain input passes through
// apart from trimming.
func CleanFreeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, "<&") {
		return s
	}
	return strings.TrimSpace(html2text.HTML2Text(s))
}
