package models

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// SentenceBank holds the typing prompts served to clients.
type SentenceBank struct {
	Sentences []string `yaml:"sentences"`
}

// LoadSentenceBank reads and parses the sentences.yaml file.
func LoadSentenceBank(path string) (*SentenceBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sentence bank: %w", err)
	}

	var bank SentenceBank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sentence bank YAML: %w", err)
	}
	if len(bank.Sentences) == 0 {
		return nil, fmt.Errorf("sentence bank %s contains no sentences", path)
	}

	return &bank, nil
}

// Pick returns up to n sentences in a shuffled order. When n exceeds the
// bank size the whole bank is returned.
func (b *SentenceBank) Pick(n int) []string {
	shuffled := make([]string, len(b.Sentences))
	copy(shuffled, b.Sentences)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
