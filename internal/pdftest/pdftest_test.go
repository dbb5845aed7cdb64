package pdftest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLabelsEveryPage(t *testing.T) {
	pdf, err := Generate(3, Options{Title: "fixture"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		text, err := PageText(pdf, i)
		require.NoError(t, err)
		assert.Contains(t, text, Label(i))
	}
}

func TestGenerateExactPageCount(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		pdf, err := Generate(n, Options{Title: "fixture"})
		require.NoError(t, err)
		diag, err := Probe(pdf, nil)
		require.NoError(t, err)
		assert.Equal(t, n, diag.TotalPages, "Generate(%d)", n)
	}
	diag, err := Probe(MustGenerate(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, diag.TotalPages)
}

func TestGenerateRejectsZeroPages(t *testing.T) {
	_, err := Generate(0, Options{})
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	pdf := MustGenerate(2)
	diag, err := Probe(pdf, []int{1, 1, 7})
	require.NoError(t, err)
	assert.Equal(t, 2, diag.TotalPages)
	require.Len(t, diag.Probes, 1)
	assert.Equal(t, 1, diag.Probes[0].PageIndex)
	assert.Greater(t, diag.Probes[0].CharCount, 0)
}

func TestNormalizePages(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, NormalizePages([]int{4, 2, 2, 0, -1, 9}, 5))
	assert.Empty(t, NormalizePages(nil, 3))
}
