package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the optional YAML override for the scoring weights, the hedging
// vocabulary and the fixed terminal messages. Everything is optional: absent
// fields keep their in-code defaults.
type Tuning struct {
	Confidence struct {
		RetrievalWeight *float64 `yaml:"retrieval_weight"`
		LengthWeight    *float64 `yaml:"length_weight"`
		CitationWeight  *float64 `yaml:"citation_weight"`
		HedgingPenalty  *float64 `yaml:"hedging_penalty"`
		HedgingPhrases  []string `yaml:"hedging_phrases"`
	} `yaml:"confidence"`

	Messages struct {
		NoContext     string `yaml:"no_context"`
		LowConfidence string `yaml:"low_confidence"`
		// Error may carry one %s slot that receives the error text.
		Error string `yaml:"error"`
	} `yaml:"messages"`
}

// LoadTuning reads the tuning file at path. An empty path returns a zero
// Tuning; a missing or malformed file is an error, since a deployment that
// sets TUNING_PATH expects its overrides to apply.
func LoadTuning(path string) (Tuning, error) {
	var t Tuning
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("parse tuning file: %w", err)
	}
	return t, nil
}
