package analysis

import "strings"

// normalizedText is a lowercased prompt split into punctuation-free words.
// Single-word terms match whole words; multi-word terms match the joined text.
type normalizedText struct {
	words  []string
	set    map[string]bool
	joined string
}

func newText(prompt string) normalizedText {
	fields := strings.Fields(strings.ToLower(prompt))
	words := make([]string, 0, len(fields))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		w := strings.Trim(f, ".,!?;:()[]{}\"'`")
		if w == "" {
			continue
		}
		words = append(words, w)
		set[w] = true
	}
	return normalizedText{
		words:  words,
		set:    set,
		joined: " " + strings.Join(words, " ") + " ",
	}
}

func (t normalizedText) contains(term string) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(t.joined, " "+term+" ")
	}
	return t.set[term]
}

func (t normalizedText) containsAny(terms []string) bool {
	for _, term := range terms {
		if t.contains(term) {
			return true
		}
	}
	return false
}

// countAny counts distinct terms present
func (t normalizedText) countAny(terms []string) int {
	n := 0
	for _, term := range terms {
		if t.contains(term) {
			n++
		}
	}
	return n
}
