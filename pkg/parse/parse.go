// Package parse turns raw pasted text into an ordered sequence of typed
// content items. Classification is line-oriented and total: every non-blank
// line maps to exactly one item, blank lines are dropped.
package parse

import (
	"net/url"
	"regexp"
	"strings"

	"linkdump/pkg/domain"
)

var (
	headerRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	mdLinkRe = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// Parse classifies each non-blank line, in priority order: markdown header,
// markdown link (first occurrence anywhere in the line), bare absolute URL,
// plain text. It never fails; anything unclassifiable is plain text.
func Parse(raw string) domain.Items {
	var items domain.Items
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := headerRe.FindStringSubmatch(trimmed); m != nil {
			items = append(items, domain.Header{Level: len(m[1]), Text: m[2]})
			continue
		}
		// A [title](target) substring anywhere in the line classifies the
		// whole line as a link, even when the target is not an absolute URL.
		if m := mdLinkRe.FindStringSubmatch(trimmed); m != nil {
			items = append(items, domain.Link{Title: m[1], URL: m[2]})
			continue
		}
		if isAbsoluteURL(trimmed) {
			items = append(items, domain.Link{URL: trimmed})
			continue
		}
		items = append(items, domain.Text{Body: trimmed})
	}
	return items
}

func isAbsoluteURL(s string) bool {
	if strings.ContainsAny(s, " \t") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}
