package importer

import (
	"fmt"
	"strings"
	"testing"

	"cineai/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleImport = `
Embed: https://vidsrc.example/embed/movie/tt0137523
Idioma: Latino
- Streamtape:https://streamtape.com/e/abc
- Voe: https://voe.sx/e/def
- Mega:https://mega.example/DOWNLOAD/file
Idioma: Castellano
- Filemoon:https://filemoon.sx/e/ghi

Embed: tt0133093
Idioma: Subtitulado
- Doodstream:https://dood.example/e/jkl
`

func TestParse_SampleFile(t *testing.T) {
	entries := Parse(sampleImport)

	require.Len(t, entries, 2)

	assert.Equal(t, "tt0137523", entries[0].ExternalID)
	require.Len(t, entries[0].Links, 2)
	assert.Equal(t, "Latino", entries[0].Links[0].Language)
	assert.Equal(t, []models.ServerLink{
		{Name: "Streamtape", URL: "https://streamtape.com/e/abc"},
		{Name: "Voe", URL: "https://voe.sx/e/def"},
	}, entries[0].Links[0].Servers)
	assert.Equal(t, "Castellano", entries[0].Links[1].Language)
	assert.Len(t, entries[0].Links[1].Servers, 1)

	assert.Equal(t, "tt0133093", entries[1].ExternalID)
	require.Len(t, entries[1].Links, 1)
	assert.Equal(t, "Subtitulado", entries[1].Links[0].Language)
}

func TestParse_WellFormedShape(t *testing.T) {
	const n, m, k = 4, 3, 5

	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Embed: tt%07d\n", i+1)
		for j := 0; j < m; j++ {
			fmt.Fprintf(&b, "Idioma: lang-%d\n", j)
			for s := 0; s < k; s++ {
				fmt.Fprintf(&b, "- server%d:https://host%d.example/e/%d-%d\n", s, s, i, j)
			}
		}
	}

	entries := Parse(b.String())

	require.Len(t, entries, n)
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf("tt%07d", i+1), entry.ExternalID)
		require.Len(t, entry.Links, m)
		for j, group := range entry.Links {
			assert.Equal(t, fmt.Sprintf("lang-%d", j), group.Language)
			assert.Len(t, group.Servers, k)
		}
	}
}

func TestParse_DownloadLinksFiltered(t *testing.T) {
	text := `Embed: tt1
Idioma: Latino
- A:https://download.example.com/x
- B:https://ok.example.com/e/1
- C:https://example.com/DownLoad?id=2
- D:https://ok.example.com/e/3`

	entries := Parse(text)

	require.Len(t, entries, 1)
	servers := entries[0].Links[0].Servers
	require.Len(t, servers, 2)
	assert.Equal(t, "B", servers[0].Name)
	assert.Equal(t, "D", servers[1].Name)
	for _, s := range servers {
		assert.NotContains(t, strings.ToLower(s.URL), "download")
	}
}

func TestParse_SplitsOnFirstColonOnly(t *testing.T) {
	entries := Parse("Embed: tt1\nIdioma: Latino\n-  Okru : https://ok.ru:443/videoembed/1  ")

	require.Len(t, entries, 1)
	assert.Equal(t, models.ServerLink{Name: "Okru", URL: "https://ok.ru:443/videoembed/1"}, entries[0].Links[0].Servers[0])
}

func TestParse_MalformedServerLineSkipped(t *testing.T) {
	entries := Parse("Embed: tt1\nIdioma: Latino\n- no colon here\n- Ok:https://x.example/e/1")

	require.Len(t, entries, 1)
	require.Len(t, entries[0].Links[0].Servers, 1)
	assert.Equal(t, "Ok", entries[0].Links[0].Servers[0].Name)
}

func TestParse_EmbedWithoutIDDoesNotCorruptOpenEntry(t *testing.T) {
	text := `Embed: tt1
Idioma: Latino
- A:https://a.example/e/1
Embed: nothing useful here
- B:https://b.example/e/2
Embed: tt2`

	entries := Parse(text)

	require.Len(t, entries, 2)
	assert.Equal(t, "tt1", entries[0].ExternalID)
	// The id-less marker is ignored so B still lands in the open group
	require.Len(t, entries[0].Links[0].Servers, 2)
	assert.Equal(t, "tt2", entries[1].ExternalID)
}

func TestParse_ServerBeforeLanguageIgnored(t *testing.T) {
	entries := Parse("Embed: tt1\n- A:https://a.example/e/1\nIdioma: Latino\n- B:https://b.example/e/2")

	require.Len(t, entries, 1)
	require.Len(t, entries[0].Links, 1)
	require.Len(t, entries[0].Links[0].Servers, 1)
	assert.Equal(t, "B", entries[0].Links[0].Servers[0].Name)
}

func TestParse_LanguageBeforeAnyEntryDiscarded(t *testing.T) {
	entries := Parse("Idioma: Latino\n- A:https://a.example/e/1\nEmbed: tt1")

	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Links)
}

func TestParse_NewEntryClosesPreviousGroup(t *testing.T) {
	entries := Parse("Embed: tt1\nIdioma: Latino\nEmbed: tt2\n- A:https://a.example/e/1")

	require.Len(t, entries, 2)
	assert.Empty(t, entries[1].Links)
	assert.Empty(t, entries[0].Links[0].Servers)
}

func TestParse_MarkersAreCaseInsensitive(t *testing.T) {
	entries := Parse("EMBED: tt42\nidioma:   Latino  \n- A:https://a.example/e/1")

	require.Len(t, entries, 1)
	assert.Equal(t, "tt42", entries[0].ExternalID)
	assert.Equal(t, "Latino", entries[0].Links[0].Language)
}

func TestParse_NoMarkers(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("   \n\n\t"))
	assert.Empty(t, Parse("Idioma: Latino\n- A:https://a.example/e/1"))
	assert.Empty(t, Parse("Embed: no id"))
}

func TestParse_EntriesWithoutLinksStillEmitted(t *testing.T) {
	entries := Parse("Embed: tt1\nEmbed: tt2\nIdioma: Latino")

	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Links)
	require.Len(t, entries[1].Links, 1)
	assert.Empty(t, entries[1].Links[0].Servers)
}

func TestParse_WindowsLineEndings(t *testing.T) {
	entries := Parse("Embed: tt1\r\nIdioma: Latino\r\n- A:https://a.example/e/1\r\n")

	require.Len(t, entries, 1)
	assert.Equal(t, "https://a.example/e/1", entries[0].Links[0].Servers[0].URL)
}

func TestParse_VeryLongLineDoesNotStopParsing(t *testing.T) {
	text := "Embed: tt1\nIdioma: Latino\n- A:https://a\n" +
		strings.Repeat("x", 2<<20) + "\n" +
		"Embed: tt2\nIdioma: Castellano\n- B:https://b\n"

	entries := Parse(text)

	require.Len(t, entries, 2)
	assert.Equal(t, "tt1", entries[0].ExternalID)
	assert.Equal(t, "tt2", entries[1].ExternalID)
	assert.Equal(t, "https://b", entries[1].Links[0].Servers[0].URL)
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want ParsedLine
	}{
		{"", ParsedLine{Kind: LineBlank}},
		{"   ", ParsedLine{Kind: LineBlank}},
		{"Embed: tt123", ParsedLine{Kind: LineEmbed, ExternalID: "tt123"}},
		{"Embed: none", ParsedLine{Kind: LineEmbed}},
		{"Idioma: Latino", ParsedLine{Kind: LineLanguage, Language: "Latino"}},
		{"- A:https://a", ParsedLine{Kind: LineServer, Server: models.ServerLink{Name: "A", URL: "https://a"}}},
		{"- A:https://a/download", ParsedLine{Kind: LineServer, Server: models.ServerLink{Name: "A", URL: "https://a/download"}, Filtered: true}},
		{"- broken", ParsedLine{Kind: LineUnrecognized}},
		{"random text", ParsedLine{Kind: LineUnrecognized}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLine(tt.line))
		})
	}
}
