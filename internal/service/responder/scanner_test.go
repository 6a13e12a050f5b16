package responder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/aide/internal/core"
)

func feedAll(t *testing.T, sc *scanner, chunks ...string) *core.Directive {
	t.Helper()
	for _, c := range chunks {
		if d := sc.Feed(c); d != nil {
			return d
		}
	}
	return sc.Finish()
}

func TestScanner_PlainTextPassesThrough(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc, "Hello, ", "here is your answer about searching for flights.\n")

	assert.Nil(t, d)
	assert.Equal(t, "Hello, here is your answer about searching for flights.\n", out.String())
	assert.Equal(t, out.String(), sc.FullText())
}

func TestScanner_DetectsSearchDirective(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc, "Let me check.\nSEARCH: current weather Edinburgh\nmore")

	require.NotNil(t, d)
	assert.Equal(t, core.DirectiveSearch, d.Kind)
	assert.Equal(t, "current weather Edinburgh", d.Payload)
	assert.Equal(t, "Let me check.\n", out.String())
	assert.NotContains(t, out.String(), "SEARCH:")
}

func TestScanner_MarkerSplitAcrossChunks(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc, "One moment. SEA", "RCH: flight prices ", "to Lisbon\n")

	require.NotNil(t, d)
	assert.Equal(t, core.DirectiveSearch, d.Kind)
	assert.Equal(t, "flight prices to Lisbon", d.Payload)
	assert.Equal(t, "One moment. ", out.String())
}

func TestScanner_DirectiveAtEOFWithoutNewline(t *testing.T) {
	sc := newScanner(func(string) {}, true)

	d := feedAll(t, sc, "FETCH: https://example.com/page")

	require.NotNil(t, d)
	assert.Equal(t, core.DirectiveFetch, d.Kind)
	assert.Equal(t, "https://example.com/page", d.Payload)
}

func TestScanner_WordBoundaryExemptsResearch(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc, "Topics for RESEARCH: compilers and parsers.\n")

	assert.Nil(t, d)
	assert.Equal(t, "Topics for RESEARCH: compilers and parsers.\n", out.String())
}

func TestScanner_DisabledDirectivesAreStripped(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, false)

	d := feedAll(t, sc, "Before.\nSEARCH: something\nAfter.\n")

	assert.Nil(t, d)
	assert.Equal(t, "Before.\nAfter.\n", out.String())
}

func TestScanner_ActionBlockWithheldFromStream(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	text := "I'll draft that.\n```ACTION\n{\"type\": \"create_task\", \"data\": {\"title\": \"Pay rent\"}}\n```\nDone.\n"
	d := feedAll(t, sc, text)

	assert.Nil(t, d)
	assert.Equal(t, "I'll draft that.\nDone.\n", out.String())
	assert.Contains(t, sc.FullText(), "```ACTION")
	assert.Contains(t, sc.FullText(), `"create_task"`)
}

func TestScanner_ActionBlockSplitAcrossChunks(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc,
		"Sure.\n``", "`ACT", "ION\n{\"type\": \"create_note\"",
		", \"data\": {}}\n`", "``\nAnything else?\n")

	assert.Nil(t, d)
	assert.Equal(t, "Sure.\nAnything else?\n", out.String())
	assert.Contains(t, sc.FullText(), "```ACTION")
}

func TestScanner_UnterminatedActionBlockStaysHidden(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc, "Here:\n```ACTION\n{\"type\": \"create_task\"")

	assert.Nil(t, d)
	assert.Equal(t, "Here:\n", out.String())
	assert.Contains(t, sc.FullText(), "```ACTION")
}

func TestScanner_EmptyDirectivePayloadIgnored(t *testing.T) {
	var out strings.Builder
	sc := newScanner(func(s string) { out.WriteString(s) }, true)

	d := feedAll(t, sc, "SEARCH: \nThat is all.\n")

	assert.Nil(t, d)
	assert.Equal(t, "That is all.\n", out.String())
}
