package evaluate

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Conversation is the per-dialogue rollup: turns in order with their
// answer scores and the conversation mean.
type Conversation struct {
	ID     string
	Source string
	Turns  []Prediction
	F1     float64
}

// Conversations groups scored predictions by conversation id, orders each
// dialogue by turn, and computes the mean answer F1 per conversation.
// Dialogues are scored concurrently; results come back sorted by id.
func Conversations(ctx context.Context, preds []Prediction) ([]Conversation, error) {
	byID := make(map[string][]Prediction)
	for _, p := range preds {
		byID[p.ID] = append(byID[p.ID], p)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	convs := make([]Conversation, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			turns := byID[id]
			sort.Slice(turns, func(a, b int) bool { return turns[a].Turn < turns[b].Turn })

			values := make([]float64, len(turns))
			for t := range turns {
				values[t] = turns[t].AnswerF1
			}

			convs[i] = Conversation{
				ID:     id,
				Source: turns[0].Source,
				Turns:  turns,
				F1:     stat.Mean(values, nil),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return convs, nil
}

// WorstConversations returns up to n lowest-scoring conversations per
// source, each group ordered worst first.
func WorstConversations(convs []Conversation, n int) map[string][]Conversation {
	bySource := make(map[string][]Conversation)
	for _, c := range convs {
		bySource[c.Source] = append(bySource[c.Source], c)
	}

	for source, group := range bySource {
		sort.SliceStable(group, func(a, b int) bool { return group[a].F1 < group[b].F1 })
		if len(group) > n {
			group = group[:n]
		}
		bySource[source] = group
	}
	return bySource
}
