package service

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Motif maps a lower-case keyword to the canonical symbol it reveals.
type Motif struct {
	Keyword string `yaml:"keyword"`
	Symbol  string `yaml:"symbol"`
}

// Vocabulary detects symbolic motifs in free text.
type Vocabulary struct {
	motifs []Motif
}

var defaultMotifs = []Motif{
	{"chain letter", "Chain Letter"},
	{"wound", "The Wound"},
	{"mirror", "Shattered Mirror"},
	{"reckoning", "The Reckoning"},
	{"compass", "Rusted Compass"},
	{"tower", "The Fallen Tower"},
	{"river", "Whispering River"},
	{"veil", "Veil of Return"},
	{"eye", "The Eye Between Worlds"},
}

// DefaultVocabulary returns the built-in motif set.
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(defaultMotifs)
}

// NewVocabulary builds a vocabulary; keywords are matched case-insensitively.
func NewVocabulary(motifs []Motif) *Vocabulary {
	v := &Vocabulary{motifs: make([]Motif, 0, len(motifs))}
	for _, m := range motifs {
		kw := strings.ToLower(strings.TrimSpace(m.Keyword))
		if kw == "" || m.Symbol == "" {
			continue
		}
		v.motifs = append(v.motifs, Motif{Keyword: kw, Symbol: m.Symbol})
	}
	return v
}

// LoadVocabulary reads motifs from a YAML file of the form
//
//	symbols:
//	  - keyword: chain letter
//	    symbol: Chain Letter
//
// An empty path yields the built-in set.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var doc struct {
		Symbols []Motif `yaml:"symbols"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	v := NewVocabulary(doc.Symbols)
	if len(v.motifs) == 0 {
		return nil, fmt.Errorf("symbols file %s defines no motifs", path)
	}
	return v, nil
}

// Detect returns the distinct symbols whose keywords occur in text, sorted.
func (v *Vocabulary) Detect(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var found []string
	for _, m := range v.motifs {
		if strings.Contains(lower, m.Keyword) && !seen[m.Symbol] {
			seen[m.Symbol] = true
			found = append(found, m.Symbol)
		}
	}
	sort.Strings(found)
	return found
}

// Motifs returns a copy of the configured motifs.
func (v *Vocabulary) Motifs() []Motif {
	return append([]Motif(nil), v.motifs...)
}
