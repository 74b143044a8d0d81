package pipeline

import (
	"fmt"
	"strings"
)

// splitSentences splits text after '.', '!' and '?' followed by a space
// and returns the trimmed, non-empty sentences.
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "! ", "!|")
	text = strings.ReplaceAll(text, "? ", "?|")
	text = strings.ReplaceAll(text, ". ", ".|")

	var sentences []string
	for _, s := range strings.Split(text, "|") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// SentenceChunker creates a chunker that groups up to maxSentencesPerChunk
// sentences per chunk
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string) ([]Chunk, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		var chunks []Chunk
		var current []string
		pos := 0

		flush := func() {
			content := strings.Join(current, " ")
			chunks = append(chunks, Chunk{
				Content: content,
				Start:   pos,
				End:     pos + len(content),
				Index:   len(chunks),
			})
			pos += len(content) + 1
			current = nil
		}

		for _, sentence := range splitSentences(text) {
			current = append(current, sentence)
			if len(current) >= maxSentencesPerChunk {
				flush()
			}
		}

		// Add remaining sentences
		if len(current) > 0 {
			flush()
		}

		return chunks, nil
	}
}
