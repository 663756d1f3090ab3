package service

import (
	"encoding/binary"
	"math/rand"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// SessionOrders produces the per-session question and option orderings.
// The shuffle is an unbiased Fisher–Yates seeded from the session id, so
// the result is reproducible, but callers must compute it exactly once at
// session creation and store it with the session: every later read comes
// from the stored state, never from re-running the shuffle.
func SessionOrders(exam *model.Exam, sessionID uuid.UUID) ([]uuid.UUID, map[uuid.UUID][]int) {
	rng := rand.New(rand.NewSource(seedFromUUID(sessionID)))

	order := make([]uuid.UUID, len(exam.Questions))
	for i := range exam.Questions {
		order[i] = exam.Questions[i].ID
	}
	if exam.ShuffleQuestions {
		shuffle(rng, len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	optionOrders := make(map[uuid.UUID][]int, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		if q.Type == model.QuestionTypeFreeText || len(q.Options) == 0 {
			continue
		}
		perm := make([]int, len(q.Options))
		for j := range perm {
			perm[j] = j
		}
		if exam.ShuffleOptions {
			shuffle(rng, len(perm), func(a, b int) {
				perm[a], perm[b] = perm[b], perm[a]
			})
		}
		optionOrders[q.ID] = perm
	}

	return order, optionOrders
}

// OrderedOptions applies a stored option permutation to a question's
// option list. An unknown or malformed permutation falls back to the
// natural order.
func OrderedOptions(q *model.Question, perm []int) []string {
	if len(perm) != len(q.Options) {
		return q.Options
	}
	out := make([]string, len(q.Options))
	for i, idx := range perm {
		if idx < 0 || idx >= len(q.Options) {
			return q.Options
		}
		out[i] = q.Options[idx]
	}
	return out
}

// shuffle is a Fisher–Yates shuffle: every permutation equally likely.
func shuffle(rng *rand.Rand, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		swap(i, j)
	}
}

func seedFromUUID(id uuid.UUID) int64 {
	hi := binary.BigEndian.Uint64(id[:8])
	lo := binary.BigEndian.Uint64(id[8:])
	return int64(hi ^ lo)
}
