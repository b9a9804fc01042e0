// Package catalog is the REST client for the media catalog backend:
// searching movies and shows, submitting requests on behalf of a wallet's
// mapped username, and registering the completion webhook.
package catalog

import (
	"fmt"
	"strings"
)

// MediaKind scopes a catalog item id. A movie and a show can share a
// numeric id from different upstream catalogs, so the kind is part of any
// item identity.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

// ParseMediaKind validates and normalizes a raw media kind.
func ParseMediaKind(raw string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindMovie:
		return KindMovie, nil
	case KindTV:
		return KindTV, nil
	default:
		return "", fmt.Errorf("unsupported media kind: %q", raw)
	}
}

// Result is one searchable catalog item. SeasonCount and Status are only
// populated for TV results.
type Result struct {
	ID          int       `json:"id"`
	Kind        MediaKind `json:"kind"`
	Title       string    `json:"title"`
	Year        int       `json:"year"`
	SeasonCount int       `json:"seasonCount"`
	Status      string    `json:"status"`
}

// Display renders the result as a numbered selection line.
func (r Result) Display(position int) string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = "(untitled)"
	}
	line := fmt.Sprintf("%d. %s", position, title)
	if r.Year > 0 {
		line += fmt.Sprintf(" (%d)", r.Year)
	}
	if r.Kind == KindTV {
		details := make([]string, 0, 2)
		if r.SeasonCount == 1 {
			details = append(details, "1 season")
		} else if r.SeasonCount > 1 {
			details = append(details, fmt.Sprintf("%d seasons", r.SeasonCount))
		}
		if status := strings.TrimSpace(r.Status); status != "" {
			details = append(details, status)
		}
		if len(details) > 0 {
			line += " - " + strings.Join(details, ", ")
		}
	}
	return line
}
