package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRenderPadsAndTruncates(t *testing.T) {
	tbl := NewTable([]Column{{Title: "ID", Width: 3}, {Title: "Title", Width: 8}})
	tbl.AddRow(Row{"1", "A very long title"})
	tbl.AddStyledRow(Row{"2"}, RowDim)

	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, 2, tbl.Len())
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[0], "Title")
	assert.Contains(t, lines[1], "--------")
	assert.Contains(t, lines[2], "A very …")
	assert.NotContains(t, out, "long title")
	assert.Contains(t, lines[3], "2")
}

func TestFitAlignsAndIsRuneAware(t *testing.T) {
	assert.Equal(t, "né  ", fit("né", 4, false))
	assert.Equal(t, "  né", fit("né", 4, true))
	assert.Equal(t, "0x…1", fit("0x…1", 4, true))
	assert.Equal(t, "abc…", pad("abcdef", 4))
}

func TestTableRightAlignedColumn(t *testing.T) {
	tbl := NewTable([]Column{{Title: "Amount", Width: 8, Right: true}})
	tbl.AddRow(Row{"1.5"})

	lines := strings.Split(tbl.Render(), "\n")
	assert.Contains(t, lines[2], "     1.5")
}

func TestKeyValueBlockContainsTitleAndPairsInOrder(t *testing.T) {
	result := KeyValueBlock("Campaign", [][2]string{
		{"First", "AAA"},
		{"Second", "BBB"},
		{"Third", "CCC"},
	})
	assert.Contains(t, result, "Campaign")
	idxFirst := strings.Index(result, "First")
	idxSecond := strings.Index(result, "Second")
	idxThird := strings.Index(result, "Third")
	require.Greater(t, idxFirst, -1)
	assert.Less(t, idxFirst, idxSecond)
	assert.Less(t, idxSecond, idxThird)
	assert.Contains(t, result, "BBB")
	assert.Contains(t, result, "First:   AAA", "keys pad to the longest key")
}

func TestKeyValueBlockEmptyTitle(t *testing.T) {
	result := KeyValueBlock("", [][2]string{{"Key", "Value"}})
	assert.Contains(t, result, "Key")
	assert.Contains(t, result, "Value")
}
