package memory

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// tokenizer counts and slices text in model tokens.
type tokenizer interface {
	Count(text string) int
	Split(text string, maxTokens int) []string
}

var (
	tk     tokenizer
	tkOnce sync.Once
)

// getTokenizer prefers cl100k_base and falls back to a rune estimate when
// the encoding cannot be loaded, e.g. without network access.
func getTokenizer() tokenizer {
	tkOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			tk = estimator{}
			return
		}
		tk = tiktokenizer{enc: enc}
	})
	return tk
}

type tiktokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t tiktokenizer) Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}
	tokens := t.enc.Encode(text, nil, nil)
	var parts []string
	for i := 0; i < len(tokens); i += maxTokens {
		end := min(i+maxTokens, len(tokens))
		parts = append(parts, t.enc.Decode(tokens[i:end]))
	}
	return parts
}

// estimator assumes four runes per token.
type estimator struct{}

const runesPerToken = 4

func (estimator) Count(text string) int {
	n := len([]rune(text))
	return (n + runesPerToken - 1) / runesPerToken
}

func (estimator) Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	step := maxTokens * runesPerToken
	var parts []string
	for i := 0; i < len(runes); i += step {
		end := min(i+step, len(runes))
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}

func countTokens(text string) int {
	return getTokenizer().Count(text)
}

type Chunk struct {
	Text      string
	TokenSize int
	Index     int
}

// DefaultChunkTokens applies when ChunkerConfig.MaxTokens is not positive.
const DefaultChunkTokens = 3000

type ChunkerConfig struct {
	MaxTokens     int
	OverlapTokens int
}

// ChunkText splits text on sentence boundaries into chunks of at most
// MaxTokens, repeating roughly OverlapTokens of context between them.
func ChunkText(text string, cfg ChunkerConfig) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultChunkTokens
	}
	enc := getTokenizer()

	sentences := splitSentences(text)

	var chunks []Chunk
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:      strings.TrimSpace(current.String()),
			TokenSize: currentTokens,
			Index:     len(chunks),
		})
		current.Reset()
		currentTokens = 0
	}

	for i, sentence := range sentences {
		sentenceTokens := enc.Count(sentence)

		// a sentence larger than a chunk is sliced by tokens
		if sentenceTokens > cfg.MaxTokens {
			flush()
			for _, part := range enc.Split(sentence, cfg.MaxTokens) {
				current.WriteString(part)
				currentTokens = enc.Count(part)
				flush()
			}
			continue
		}

		if current.Len() > 0 && currentTokens+1+sentenceTokens > cfg.MaxTokens {
			flush()

			overlap := overlapFrom(sentences, i, cfg.OverlapTokens)
			if ot := enc.Count(overlap); overlap != "" && ot+1+sentenceTokens <= cfg.MaxTokens {
				current.WriteString(overlap)
				currentTokens = ot
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
			currentTokens++
		}
		current.WriteString(sentence)
		currentTokens += sentenceTokens
	}
	flush()

	return chunks
}

func splitSentences(text string) []string {
	enders := map[rune]bool{
		'.': true, '!': true, '?': true,
		'。': true, '！': true, '？': true, '．': true, '…': true,
	}

	var sentences []string
	for _, para := range splitParagraphs(text) {
		var current strings.Builder
		runes := []rune(para)

		for i, r := range runes {
			current.WriteRune(r)

			if enders[r] && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) || isCJK(runes[i+1])) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		// soft wraps inside a paragraph
		p = strings.TrimSpace(strings.ReplaceAll(p, "\n", " "))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func overlapFrom(sentences []string, currentIdx, targetTokens int) string {
	if currentIdx == 0 || targetTokens <= 0 {
		return ""
	}

	var overlap []string
	tokens := 0
	for i := currentIdx - 1; i >= 0 && tokens < targetTokens; i-- {
		overlap = append([]string{sentences[i]}, overlap...)
		tokens += countTokens(sentences[i])
	}
	return strings.Join(overlap, " ")
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
