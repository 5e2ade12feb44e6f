package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/docuchat/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Separators in the order they are tried when looking for a place to cut.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// CollapseWhitespace squeezes runs of spaces and tabs before splitting.
	// Line breaks are kept so paragraph boundaries survive.
	CollapseWhitespace bool
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if err := validate(config.ChunkSize, config.ChunkOverlap); err != nil {
		return Processor{}, err
	}
	return Processor{config: config}, nil
}

func New() Processor {
	p, _ := NewWithConfig(ProcessorConfig{})
	return p
}

func (p Processor) Config() ProcessorConfig { return p.config }

// Split implements types.Chunker.
func (p Processor) Split(text string, chunkSize, overlap int) ([]models.Segment, error) {
	return Split(text, chunkSize, overlap)
}

// Process splits every page of a document. Sequence indexes run across
// pages so segment order equals reading order of the whole document.
func (p Processor) Process(doc models.Document, pages []models.Page) ([]models.Segment, error) {
	var segments []models.Segment

	for _, page := range pages {
		text := page.Text
		if p.config.CollapseWhitespace {
			text = collapseWhitespace(text)
		}

		pageSegments, err := Split(text, p.config.ChunkSize, p.config.ChunkOverlap)
		if err != nil {
			return nil, err
		}

		for _, seg := range pageSegments {
			seg.SourceDocumentID = doc.ID
			seg.Source = doc.Filename
			seg.Page = page.Number
			seg.SequenceIndex = len(segments)
			segments = append(segments, seg)
		}
	}

	return segments, nil
}

// Split cuts text into windows of at most chunkSize characters where each
// window starts overlap characters before the previous one ended. A window
// that does not reach the end of the text is shortened to the last natural
// boundary in its second half, if there is one.
func Split(text string, chunkSize, overlap int) ([]models.Segment, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	var segments []models.Segment

	start := 0
	for start < n {
		end := start + chunkSize
		if end >= n {
			end = n
		} else {
			end = cutPoint(runes, start, end, overlap, chunkSize)
		}

		segments = append(segments, models.Segment{
			Text:          string(runes[start:end]),
			SequenceIndex: len(segments),
			Start:         start,
			CharLength:    end - start,
		})

		if end == n {
			break
		}
		start = end - overlap
	}

	return segments, nil
}

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("chunk overlap must be non-negative and less than chunk size, got %d (chunk size %d)", overlap, chunkSize)
	}
	return nil
}

// cutPoint returns the exclusive end of the window [start, end). The result
// is always greater than start+overlap so the next window moves forward.
func cutPoint(runes []rune, start, end, overlap, chunkSize int) int {
	lowest := start + overlap
	if half := start + chunkSize/2; half > lowest {
		lowest = half
	}

	for _, sep := range separators {
		for i := end - len(sep); i >= start && i+len(sep) > lowest; i-- {
			if hasPrefix(runes[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
