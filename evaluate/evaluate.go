// Package evaluate scores model predictions: token-overlap answer F1,
// samplewise rationale F1, 3-way yes/no/generative classification F1, and
// the segmented summaries and per-conversation rollups built from them.
// Scoring operates on token ids; text normalization happens upstream of
// the encoded datasets this package consumes.
package evaluate

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/convqa/convqa/coqa"
	"github.com/convqa/convqa/losses"
)

// Prediction pairs one example's references with the model's outputs.
// Slices may be nil when the model variant does not produce that head;
// scoring skips what is absent.
type Prediction struct {
	ID         string          `json:"id"`
	Turn       int             `json:"turn"`
	Source     string          `json:"source,omitempty"`
	AnswerType coqa.AnswerType `json:"answer_type"`

	Answer     []int32 `json:"answer"`
	PredAnswer []int32 `json:"pred_answer"`

	YNGLabel     int32 `json:"yng_label"`
	PredYNGLabel int32 `json:"pred_yng_label"`

	RationaleLabels     []int32 `json:"rationale_labels,omitempty"`
	PredRationaleLabels []int32 `json:"pred_rationale_labels,omitempty"`

	// Filled by Evaluate.
	AnswerF1    float64 `json:"answer_f1,omitempty"`
	RationaleF1 float64 `json:"rationale_f1,omitempty"`
}

// LoadPredictions reads a prediction set from a JSON file.
func LoadPredictions(path string) ([]Prediction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}

	var preds []Prediction
	if err := json.Unmarshal(b, &preds); err != nil {
		return nil, fmt.Errorf("load predictions %s: %w", path, err)
	}
	return preds, nil
}

// Evaluate scores every prediction in place: answer token F1 always,
// rationale F1 when both rationale label sequences are present.
func Evaluate(preds []Prediction) {
	for i := range preds {
		p := &preds[i]
		p.AnswerF1 = TokenF1(p.PredAnswer, p.Answer)
		if p.RationaleLabels != nil && p.PredRationaleLabels != nil {
			p.RationaleF1 = RationaleF1(p.PredRationaleLabels, p.RationaleLabels)
		}
	}
}

// TokenF1 is SQuAD-style overlap F1 over token ids: precision and recall
// of the multiset intersection between prediction and reference. Two empty
// sequences score 1, one empty sequence scores 0.
func TokenF1(pred, gold []int32) float64 {
	if len(pred) == 0 && len(gold) == 0 {
		return 1
	}
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}

	counts := make(map[int32]int, len(gold))
	for _, t := range gold {
		counts[t]++
	}

	var overlap int
	for _, t := range pred {
		if counts[t] > 0 {
			counts[t]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	precision := float64(overlap) / float64(len(pred))
	recall := float64(overlap) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}

// RationaleF1 is the macro F1 over the two rationale classes for a single
// example. Positions labeled with the ignore index do not count; a class
// with an empty F1 denominator scores 0 and still enters the macro mean.
func RationaleF1(pred, gold []int32) float64 {
	var tp, fp, fn [2]int
	for i, g := range gold {
		if g == losses.IgnoreIndex {
			continue
		}
		var p int32
		if i < len(pred) {
			p = pred[i]
		}
		for c := int32(0); c < 2; c++ {
			switch {
			case p == c && g == c:
				tp[c]++
			case p == c:
				fp[c]++
			case g == c:
				fn[c]++
			}
		}
	}

	var sum float64
	for c := 0; c < 2; c++ {
		sum += classF1(tp[c], fp[c], fn[c])
	}
	return sum / 2
}

// YNGF1 scores the 3-way yes/no/generative head over a prediction set,
// returning the macro F1 and the per-class F1 values indexed by
// coqa.YNGYes, coqa.YNGNo, coqa.YNGGenerative.
func YNGF1(preds []Prediction) (macro float64, perClass [3]float64) {
	var tp, fp, fn [3]int
	for i := range preds {
		g, p := preds[i].YNGLabel, preds[i].PredYNGLabel
		if g == losses.IgnoreIndex {
			continue
		}
		for c := int32(0); c < 3; c++ {
			switch {
			case p == c && g == c:
				tp[c]++
			case p == c:
				fp[c]++
			case g == c:
				fn[c]++
			}
		}
	}

	var sum float64
	for c := 0; c < 3; c++ {
		perClass[c] = classF1(tp[c], fp[c], fn[c])
		sum += perClass[c]
	}
	return sum / 3, perClass
}

func classF1(tp, fp, fn int) float64 {
	denom := 2*tp + fp + fn
	if denom == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(denom)
}

// Metric is one summary row: a mean score and the fraction of the
// prediction set it was computed over.
type Metric struct {
	Name     string
	Value    float64
	Coverage float64
}

// Summary is the segmented metric report in presentation order.
type Summary []Metric

// Get looks a metric up by name.
func (s Summary) Get(name string) (Metric, bool) {
	for _, m := range s {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Summarize builds the segmented summary from scored predictions: overall
// answer F1, yes/no slices of the yes_no answer type, per-answer-type F1
// with coverage ratios, then rationale and classification metrics when
// their predictions are present.
func Summarize(preds []Prediction) Summary {
	s := Summary{
		avgF1(preds, "tot_squad_f1", nil),
		avgF1(preds, "yes_f1", func(p *Prediction) bool {
			return p.AnswerType == coqa.AnswerYesNo && p.YNGLabel == coqa.YNGYes
		}),
		avgF1(preds, "no_f1", func(p *Prediction) bool {
			return p.AnswerType == coqa.AnswerYesNo && p.YNGLabel == coqa.YNGNo
		}),
	}

	for _, at := range coqa.AnswerTypes(false) {
		at := at
		s = append(s, avgF1(preds, at.String()+"_f1", func(p *Prediction) bool {
			return p.AnswerType == at
		}))
	}

	if hasRationale(preds) {
		values := make([]float64, 0, len(preds))
		for i := range preds {
			if preds[i].RationaleLabels != nil {
				values = append(values, preds[i].RationaleF1)
			}
		}
		s = append(s, Metric{Name: "rationale_f1", Value: stat.Mean(values, nil), Coverage: 1})
	}

	if hasYNG(preds) {
		macro, perClass := YNGF1(preds)
		s = append(s,
			Metric{Name: "yng_f1_macro", Value: macro, Coverage: 1},
			Metric{Name: "yng_yes_f1", Value: perClass[coqa.YNGYes], Coverage: 1},
			Metric{Name: "yng_no_f1", Value: perClass[coqa.YNGNo], Coverage: 1},
			Metric{Name: "yng_gen_f1", Value: perClass[coqa.YNGGenerative], Coverage: 1},
		)
	}

	return s
}

func avgF1(preds []Prediction, name string, filter func(*Prediction) bool) Metric {
	values := make([]float64, 0, len(preds))
	for i := range preds {
		if filter == nil || filter(&preds[i]) {
			values = append(values, preds[i].AnswerF1)
		}
	}

	m := Metric{Name: name}
	if len(preds) > 0 {
		m.Coverage = float64(len(values)) / float64(len(preds))
	}
	if len(values) > 0 {
		m.Value = stat.Mean(values, nil)
	}
	return m
}

func hasRationale(preds []Prediction) bool {
	for i := range preds {
		if preds[i].RationaleLabels != nil && preds[i].PredRationaleLabels != nil {
			return true
		}
	}
	return false
}

func hasYNG(preds []Prediction) bool {
	for i := range preds {
		if preds[i].YNGLabel != losses.IgnoreIndex {
			return true
		}
	}
	return false
}
