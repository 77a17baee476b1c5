// Package marker encodes non-text conversation items as invisible inline
// placeholders so they survive round-trips through a plain-text transcript
// medium. A marker renders as a markdown reference link definition, which
// viewers hide, and carries the kind and storage id of the persisted item.
package marker

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	prefix  = "openai_responses"
	version = "v2"
)

// pattern matches one wrapped or bare marker, consuming the surrounding
// newlines and the reference-link tail so text segments stay clean.
var pattern = regexp.MustCompile(
	`\n?\[` + prefix + `:` + version +
		`:([a-z0-9_]+):([0-9A-HJKMNP-TV-Z]{16})(\?[^\]\s]*)?\](?:: #)?\n?`)

// Marker identifies one persisted item inside a transcript.
type Marker struct {
	Kind  string
	ID    string
	Query string // raw metadata query string, without the leading "?"
}

// New creates a marker for an item kind and storage id.
func New(kind, id string) Marker {
	return Marker{Kind: kind, ID: id}
}

// WithModel attaches the producing model id as marker metadata.
func (m Marker) WithModel(model string) Marker {
	if model == "" {
		return m
	}
	m.Query = "model=" + url.QueryEscape(model)
	return m
}

// Model returns the model id carried in the marker metadata, if any.
func (m Marker) Model() string {
	vals, err := url.ParseQuery(m.Query)
	if err != nil {
		return ""
	}
	return vals.Get("model")
}

// String renders the bare bracket form.
func (m Marker) String() string {
	if m.Query != "" {
		return fmt.Sprintf("[%s:%s:%s:%s?%s]", prefix, version, m.Kind, m.ID, m.Query)
	}
	return fmt.Sprintf("[%s:%s:%s:%s]", prefix, version, m.Kind, m.ID)
}

// Wrapped renders the marker as a newline-delimited markdown reference link
// definition, the form embedded into transcripts.
func (m Marker) Wrapped() string {
	return "\n" + m.String() + ": #\n"
}

// Parse decodes a single bare or wrapped marker string.
func Parse(s string) (Marker, bool) {
	groups := pattern.FindStringSubmatch(s)
	if groups == nil {
		return Marker{}, false
	}
	return fromGroups(groups), true
}

// Extract returns all markers embedded in text, in order of appearance.
func Extract(text string) []Marker {
	var out []Marker
	for _, groups := range pattern.FindAllStringSubmatch(text, -1) {
		out = append(out, fromGroups(groups))
	}
	return out
}

// Contains reports whether text embeds at least one marker.
func Contains(text string) bool {
	return pattern.MatchString(text)
}

// Segment is one piece of a split transcript: either literal text or a
// marker placeholder.
type Segment struct {
	Text   string
	Marker *Marker
}

// Split partitions text into literal and marker segments in order. Empty
// literal runs between adjacent markers are omitted.
func Split(text string) []Segment {
	var out []Segment
	last := 0
	for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
		if lit := text[last:loc[0]]; lit != "" {
			out = append(out, Segment{Text: lit})
		}
		m := fromGroups(groupsAt(text, loc))
		out = append(out, Segment{Marker: &m})
		last = loc[1]
	}
	if lit := text[last:]; lit != "" {
		out = append(out, Segment{Text: lit})
	}
	return out
}

func fromGroups(groups []string) Marker {
	return Marker{
		Kind:  groups[1],
		ID:    groups[2],
		Query: strings.TrimPrefix(groups[3], "?"),
	}
}

func groupsAt(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return groups
}
