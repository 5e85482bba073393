// Package coqa holds the CoQA data model: raw dataset records, encoded
// training examples, and the batching machinery (dynamic-padding collator
// and restartable loader) that feeds the trainer.
package coqa

import (
	"encoding/json"
	"fmt"
	"os"
)

// Raw CoQA dataset records, as distributed.
type RawDataset struct {
	Version string  `json:"version"`
	Data    []Story `json:"data"`
}

type Story struct {
	ID                string              `json:"id"`
	Source            string              `json:"source"`
	Story             string              `json:"story"`
	Questions         []Question          `json:"questions"`
	Answers           []Answer            `json:"answers"`
	AdditionalAnswers map[string][]Answer `json:"additional_answers,omitempty"`
}

type Question struct {
	TurnID     int        `json:"turn_id"`
	InputText  string     `json:"input_text"`
	AnswerType AnswerType `json:"answer_type,omitempty"`
}

type Answer struct {
	TurnID     int        `json:"turn_id"`
	InputText  string     `json:"input_text"`
	SpanText   string     `json:"span_text"`
	SpanStart  int        `json:"span_start"`
	SpanEnd    int        `json:"span_end"`
	AnswerType AnswerType `json:"answer_type,omitempty"`
}

// Example is one encoded question turn, ready for batching. Token encoding
// happens upstream; the trainer only needs aligned id/label sequences.
type Example struct {
	ID   string `json:"id"`
	Turn int    `json:"turn"`

	InputIDs        []int32   `json:"input_ids"`
	Labels          []int32   `json:"labels"`
	RationaleLabels []float32 `json:"rationale_labels"`
	PassageMask     []float32 `json:"passage_mask"`
	YNGLabel        int32     `json:"yng_label"`
	YesNo           bool      `json:"yes_no"`

	AnswerType AnswerType `json:"answer_type"`
	Source     string     `json:"source,omitempty"`
}

// Dataset is an ordered collection of encoded examples.
type Dataset []Example

// LoadDataset reads an encoded dataset from a JSON file.
func LoadDataset(path string) (Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	var ds Dataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return ds, nil
}

// LoadRaw reads a raw CoQA JSON file.
func LoadRaw(path string) (*RawDataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load raw dataset: %w", err)
	}

	var ds RawDataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("load raw dataset %s: %w", path, err)
	}
	return &ds, nil
}
