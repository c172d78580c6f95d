package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sandevgo/tuskmem/internal/core"
)

const (
	// words shorter than this are never expanded
	fuzzyMinRunes = 4
	// vocabulary terms added per query word
	fuzzyMaxTerms = 5
)

// LexicalIndex is the BM25 keyword backend over the memories_fts table.
// The table is maintained by triggers, so there are no write methods.
type LexicalIndex struct {
	db *sql.DB
}

func NewLexicalIndex(db *sql.DB) *LexicalIndex {
	return &LexicalIndex{db: db}
}

// QueryText ranks memories by BM25 over content and categories. Each query
// word also matches longer terms sharing it as a prefix, and indexed terms
// within a small edit distance so that typos still hit.
func (l *LexicalIndex) QueryText(ctx context.Context, query string, filter core.Filter, limit int) ([]core.Ranked, error) {
	words := queryWords(query)
	if len(words) == 0 || limit <= 0 {
		return nil, nil
	}

	fuzzy, err := l.fuzzyTerms(ctx, words)
	if err != nil {
		return nil, err
	}
	match := ftsQuery(words, fuzzy)

	where, args := whereFilter(filter)
	sqlStr := `SELECT m.id, bm25(memories_fts) AS score
		FROM memories_fts
		JOIN memories m ON m.seq = memories_fts.rowid
		WHERE memories_fts MATCH ? AND ` + where + `
		ORDER BY score ASC, m.id ASC
		LIMIT ?`
	args = append([]any{match}, args...)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var results []core.Ranked
	for rows.Next() {
		var r core.Ranked
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		// bm25() is lower-is-better
		r.Score = -r.Score
		results = append(results, r)
	}
	return results, rows.Err()
}

// fuzzyTerms returns vocabulary terms close to the query words, nearest
// first. Terms already covered by a word or its prefix are left out.
func (l *LexicalIndex) fuzzyTerms(ctx context.Context, words []string) ([]string, error) {
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	var out []string
	for _, w := range words {
		terms, err := l.nearTerms(ctx, w)
		if err != nil {
			return nil, err
		}
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (l *LexicalIndex) nearTerms(ctx context.Context, word string) ([]string, error) {
	k := maxEdits(word)
	if k == 0 {
		return nil, nil
	}
	n := utf8.RuneCountInString(word)

	rows, err := l.db.QueryContext(ctx,
		`SELECT term FROM memories_fts_vocab WHERE length(term) BETWEEN ? AND ? ORDER BY doc DESC, term ASC`,
		n-k, n+k)
	if err != nil {
		return nil, fmt.Errorf("failed to read search vocabulary: %w", err)
	}
	defer rows.Close()

	type near struct {
		term string
		dist int
	}
	var found []near
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary term: %w", err)
		}
		if strings.HasPrefix(term, word) {
			continue
		}
		if d := levenshtein.ComputeDistance(word, term); d <= k {
			found = append(found, near{term: term, dist: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search vocabulary: %w", err)
	}

	slices.SortStableFunc(found, func(a, b near) int { return cmp.Compare(a.dist, b.dist) })
	found = found[:min(len(found), fuzzyMaxTerms)]

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.term
	}
	return out, nil
}

func maxEdits(word string) int {
	switch n := utf8.RuneCountInString(word); {
	case n < fuzzyMinRunes:
		return 0
	case n < 8:
		return 1
	default:
		return 2
	}
}

// queryWords lower-cases the word runs of a free text query.
func queryWords(query string) []string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !isWordRune(r)
	})
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// ftsQuery quotes the words for FTS5 as prefix terms and the fuzzy terms as
// exact ones, all joined with OR.
// "dark roast" → `"dark"* OR "roast"*`
func ftsQuery(words, fuzzy []string) string {
	terms := make([]string, 0, len(words)+len(fuzzy))
	for _, w := range words {
		terms = append(terms, quoteTerm(w)+"*")
	}
	for _, f := range fuzzy {
		terms = append(terms, quoteTerm(f))
	}
	return strings.Join(terms, " OR ")
}

func quoteTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
