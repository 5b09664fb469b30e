// Package importer turns the admin import text format into import entries.
//
// The format is line oriented:
//
//	Embed: <text containing an id like tt1234567>
//	Idioma: <language label>
//	- <server name>:<url>
//
// An entry runs from its Embed line to the next Embed line with an id.
package importer

import (
	"regexp"
	"strings"

	"cineai/models"
)

const (
	embedMarker    = "embed:"
	languageMarker = "idioma:"
	serverPrefix   = "-"
)

// externalIDPattern matches provider ids such as tt1234567
var externalIDPattern = regexp.MustCompile(`[a-z]{2}\d+`)

// LineKind identifies what a single input line means to the parser
type LineKind int

// Line kinds
const (
	LineBlank LineKind = iota
	LineEmbed
	LineLanguage
	LineServer
	LineUnrecognized
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineEmbed:
		return "embed"
	case LineLanguage:
		return "language"
	case LineServer:
		return "server"
	default:
		return "unrecognized"
	}
}

// ParsedLine is the classification of one input line.
// ExternalID is set for LineEmbed (empty when the line had no id),
// Language for LineLanguage, Server for LineServer.
type ParsedLine struct {
	Kind       LineKind
	ExternalID string
	Language   string
	Server     models.ServerLink
	// Filtered is set on server lines whose URL is a download link.
	Filtered bool
}

// ClassifyLine classifies a single line of import text
func ClassifyLine(line string) ParsedLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ParsedLine{Kind: LineBlank}
	}

	lower := strings.ToLower(trimmed)

	if strings.Contains(lower, embedMarker) {
		return ParsedLine{Kind: LineEmbed, ExternalID: externalIDPattern.FindString(trimmed)}
	}

	if idx := strings.Index(lower, languageMarker); idx >= 0 {
		label := strings.TrimSpace(trimmed[idx+len(languageMarker):])
		return ParsedLine{Kind: LineLanguage, Language: label}
	}

	if strings.HasPrefix(trimmed, serverPrefix) {
		name, url, ok := strings.Cut(trimmed[len(serverPrefix):], ":")
		if !ok {
			return ParsedLine{Kind: LineUnrecognized}
		}
		server := models.ServerLink{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)}
		return ParsedLine{Kind: LineServer, Server: server, Filtered: IsDownloadLink(server.URL)}
	}

	return ParsedLine{Kind: LineUnrecognized}
}

// IsDownloadLink reports whether url points to a download rather than a player
func IsDownloadLink(url string) bool {
	return strings.Contains(strings.ToLower(url), "download")
}

// Parse converts import text into entries in order of appearance.
// Unparseable lines are ignored; text without any Embed line yields no entries.
func Parse(text string) []models.ImportEntry {
	var p parser

	// Lines have no length limit; ClassifyLine trims the trailing \r of CRLF input
	for line := range strings.Lines(text) {
		p.feed(ClassifyLine(line))
	}

	p.flush()
	return p.entries
}

// parser is the state machine behind Parse
type parser struct {
	entries []models.ImportEntry
	current *models.ImportEntry
	// group indexes the open language group in current.Links, -1 when none
	group int
}

func (p *parser) feed(line ParsedLine) {
	switch line.Kind {
	case LineEmbed:
		if line.ExternalID == "" {
			return
		}
		p.flush()
		p.current = &models.ImportEntry{ExternalID: line.ExternalID, Links: []models.LanguageGroup{}}
		p.group = -1

	case LineLanguage:
		if p.current == nil {
			return
		}
		p.current.Links = append(p.current.Links, models.LanguageGroup{
			Language: line.Language,
			Servers:  []models.ServerLink{},
		})
		p.group = len(p.current.Links) - 1

	case LineServer:
		if p.current == nil || p.group < 0 || line.Filtered {
			return
		}
		group := &p.current.Links[p.group]
		group.Servers = append(group.Servers, line.Server)
	}
}

func (p *parser) flush() {
	if p.current != nil {
		p.entries = append(p.entries, *p.current)
		p.current = nil
	}
	p.group = -1
}
