package knowledge

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Chunking thresholds, in runes.
const (
	MinSectionLength    = 50
	MinSubsectionLength = 30
	MaxSectionLength    = 1000
)

// Chunk is one indexable piece of a document.
type Chunk struct {
	Content         string `json:"content"`
	Category        string `json:"category"`
	Source          string `json:"source"`
	SectionIndex    int    `json:"section_index"`
	SubsectionIndex int    `json:"subsection_index"`
	WordCount       int    `json:"word_count"`
	CharCount       int    `json:"char_count"`
}

// Category derives a display category from a file name:
// "billing_faq.md" becomes "Billing Faq".
func Category(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return cases.Title(language.English).String(strings.ReplaceAll(stem, "_", " "))
}

// Split chunks a markdown document. It splits on level-two headers, or on
// level-one headers when there are none. Sections shorter than
// MinSectionLength are dropped. Sections longer than MaxSectionLength are
// split again on level-three headers, keeping parts of at least
// MinSubsectionLength.
func Split(content, source string) []Chunk {
	content = norm.NFC.String(content)
	category := Category(source)

	sections := strings.Split(content, "\n## ")
	if len(sections) == 1 {
		sections = strings.Split(content, "\n# ")
	}

	var chunks []Chunk
	for i, section := range sections {
		section = strings.TrimSpace(section)
		if utf8.RuneCountInString(section) < MinSectionLength {
			continue
		}

		if utf8.RuneCountInString(section) <= MaxSectionLength {
			chunks = append(chunks, newChunk(section, category, source, i, 0))
			continue
		}

		for j, sub := range strings.Split(section, "\n### ") {
			sub = strings.TrimSpace(sub)
			if utf8.RuneCountInString(sub) < MinSubsectionLength {
				continue
			}
			chunks = append(chunks, newChunk(sub, category, source, i, j))
		}
	}
	return chunks
}

func newChunk(content, category, source string, section, subsection int) Chunk {
	return Chunk{
		Content:         content,
		Category:        category,
		Source:          source,
		SectionIndex:    section,
		SubsectionIndex: subsection,
		WordCount:       len(strings.Fields(content)),
		CharCount:       utf8.RuneCountInString(content),
	}
}
