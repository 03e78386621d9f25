package format

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBlocksParagraphs(t *testing.T) {
	assert.Equal(t, []string{"Para1", "Para2"}, SplitBlocks("Para1\n\nPara2", 1000))
}

func TestSplitBlocksKeepsLowercaseContinuation(t *testing.T) {
	assert.Equal(t, []string{"eins\n\nzwei"}, SplitBlocks("eins\n\nzwei", 1000))
}

func TestSplitBlocksUmlautParagraph(t *testing.T) {
	assert.Equal(t, []string{"Hallo", "Übersicht"}, SplitBlocks("Hallo\n\nÜbersicht", 1000))
}

func TestSplitBlocksHardCut(t *testing.T) {
	blocks := SplitBlocks(strings.Repeat("a", 2000), 500)
	require.Len(t, blocks, 4)
	for _, b := range blocks {
		assert.Len(t, b, 500)
	}
}

func TestSplitBlocksSentenceBoundary(t *testing.T) {
	sentence := strings.Repeat("x", 40) + ". "
	text := strings.Repeat(sentence, 10)
	blocks := SplitBlocks(text, 100)
	require.Greater(t, len(blocks), 1)
	for _, b := range blocks {
		assert.LessOrEqual(t, utf8.RuneCountInString(b), 100)
		assert.NotEmpty(t, strings.TrimSpace(b))
	}
	assert.True(t, strings.HasSuffix(blocks[0], "."))

	// only the consumed separators (single spaces) go missing
	joined := strings.Join(blocks, "")
	assert.Equal(t, strings.ReplaceAll(text, " ", ""), strings.ReplaceAll(joined, " ", ""))
}

func TestSplitBlocksNewlineBoundary(t *testing.T) {
	text := strings.Repeat("b", 30) + "\n" + strings.Repeat("c", 30)
	assert.Equal(t, []string{strings.Repeat("b", 30), strings.Repeat("c", 30)}, SplitBlocks(text, 40))
}

func TestSplitBlocksDropsBlank(t *testing.T) {
	assert.Empty(t, SplitBlocks("   ", 10))
	assert.Equal(t, []string{"Eins", "Zwei"}, SplitBlocks("\n\nEins\n\nZwei", 1000))
}

func TestSplitBlocksCountsCharacters(t *testing.T) {
	blocks := SplitBlocks(strings.Repeat("ä", 10), 5)
	assert.Equal(t, []string{"äääää", "äääää"}, blocks)
}
