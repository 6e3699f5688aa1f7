// Package xmlutil provides XML escaping utilities for prompt injection prevention.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape replaces characters with special meaning in XML to prevent
// prompt injection when embedding document text in XML-delimited templates.
func Escape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		// EscapeText surfaces writer errors only, and strings.Builder
		// cannot fail; invalid UTF-8 is substituted, not rejected.
		return s
	}
	return buf.String()
}
