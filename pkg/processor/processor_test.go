package processor_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/processor"
)

// reassemble drops the trailing overlap of every non-final segment.
func reassemble(segments []models.Segment, overlap int) string {
	var b strings.Builder
	for i, seg := range segments {
		runes := []rune(seg.Text)
		if i < len(segments)-1 {
			runes = runes[:len(runes)-overlap]
		}
		b.WriteString(string(runes))
	}
	return b.String()
}

func TestSplit_FixedWindows(t *testing.T) {
	text := strings.Repeat("abcdefghij", 250)
	require.Len(t, text, 2500)

	segments, err := processor.Split(text, 1000, 100)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	expected := [][2]int{{0, 1000}, {900, 1900}, {1800, 2500}}
	for i, seg := range segments {
		assert.Equal(t, i, seg.SequenceIndex)
		assert.Equal(t, expected[i][0], seg.Start)
		assert.Equal(t, expected[i][1]-expected[i][0], seg.CharLength)
		assert.Equal(t, text[expected[i][0]:expected[i][1]], seg.Text)
	}
}

func TestSplit_NoTrailingContainedSegment(t *testing.T) {
	text := strings.Repeat("x", 1900)

	segments, err := processor.Split(text, 1000, 100)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 900, segments[1].Start)
	assert.Equal(t, 1000, segments[1].CharLength)
}

func TestSplit_PrefersNaturalBoundaries(t *testing.T) {
	para := strings.Repeat("word ", 150) // 750 chars
	text := para + "\n\n" + para + "\n\n" + para

	segments, err := processor.Split(text, 1000, 100)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)

	first := segments[0].Text
	assert.True(t, strings.HasSuffix(first, "\n\n"), "first segment should end at the paragraph break")
	assert.Equal(t, 752, segments[0].CharLength)
	assert.Equal(t, text, reassemble(segments, 100))
}

func TestSplit_Reassembly(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abc de.\nfgh! ij?é🙂 ")

	tests := []struct {
		name      string
		length    int
		chunkSize int
		overlap   int
	}{
		{"short text", 10, 100, 10},
		{"exact multiple", 300, 100, 0},
		{"default policy", 4321, 1000, 100},
		{"tiny chunks", 257, 7, 3},
		{"chunk of one", 20, 1, 0},
		{"large overlap", 999, 50, 49},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runes := make([]rune, tt.length)
			for i := range runes {
				runes[i] = alphabet[rng.Intn(len(alphabet))]
			}
			text := string(runes)

			segments, err := processor.Split(text, tt.chunkSize, tt.overlap)
			require.NoError(t, err)

			assert.Equal(t, text, reassemble(segments, tt.overlap))

			minSegments := (tt.length + tt.chunkSize - 1) / tt.chunkSize
			assert.GreaterOrEqual(t, len(segments), minSegments)

			for i, seg := range segments {
				assert.LessOrEqual(t, seg.CharLength, tt.chunkSize)
				assert.Equal(t, len([]rune(seg.Text)), seg.CharLength)
				if i > 0 {
					prev := segments[i-1]
					assert.Equal(t, prev.Start+prev.CharLength-tt.overlap, seg.Start)
				}
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	segments, err := processor.Split("", 1000, 100)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"zero chunk size", 0, 0},
		{"negative chunk size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap larger than size", 10, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.Split("some text", tt.chunkSize, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestProcessor_Process(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    50,
		ChunkOverlap: 10,
	})
	require.NoError(t, err)

	doc := models.NewDocument("notes.pdf", models.FormatPDF, []byte("raw"))
	pages := []models.Page{
		{DocumentID: doc.ID, Number: 1, Text: strings.Repeat("a", 120)},
		{DocumentID: doc.ID, Number: 2, Text: strings.Repeat("b", 30)},
	}

	segments, err := p.Process(doc, pages)
	require.NoError(t, err)
	require.Len(t, segments, 4)

	for i, seg := range segments {
		assert.Equal(t, i, seg.SequenceIndex)
		assert.Equal(t, doc.ID, seg.SourceDocumentID)
		assert.Equal(t, "notes.pdf", seg.Source)
	}
	assert.Equal(t, 1, segments[2].Page)
	assert.Equal(t, 2, segments[3].Page)
}

func TestNewWithConfig(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)
	assert.Equal(t, processor.DefaultChunkSize, p.Config().ChunkSize)
	assert.Equal(t, processor.DefaultChunkOverlap, p.Config().ChunkOverlap)

	p, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 200})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Config().ChunkOverlap)

	_, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 10})
	assert.Error(t, err)
}
