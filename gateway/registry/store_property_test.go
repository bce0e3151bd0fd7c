package registry

import (
	"fmt"
	"sort"
	"testing"

	"pgregory.net/rapid"
	"go.uber.org/zap"

	"github.com/aegisframework/aegis/types"
)

// modelRecord mirrors what the store should believe about one resource.
type modelRecord struct {
	caps   map[string]bool
	active bool
}

// This property test drives the store through a random interleaving of
// register, re-register, deactivate, activate, and remove operations against
// a plain-map model, then checks that capability queries return exactly the
// active records whose capability set is a superset of the query tokens.
func TestProperty_Store_QueryMatchesModel(t *testing.T) {
	capPool := []string{"weather", "forecast", "search", "translate", "location:São Paulo"}

	rapid.Check(t, func(rt *rapid.T) {
		s := NewStore(zap.NewNop())
		model := make(map[string]*modelRecord)

		numOps := rapid.IntRange(1, 60).Draw(rt, "numOps")
		for op := 0; op < numOps; op++ {
			id := fmt.Sprintf("res-%d", rapid.IntRange(0, 9).Draw(rt, fmt.Sprintf("id_%d", op)))

			switch rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("op_%d", op)) {
			case 0: // register or re-register with the same endpoint
				n := rapid.IntRange(1, len(capPool)).Draw(rt, fmt.Sprintf("ncaps_%d", op))
				caps := append([]string(nil), capPool[:n]...)

				_, err := s.Register(&types.ResourceRecord{
					ID:           id,
					Capabilities: caps,
					Endpoint:     "http://localhost:9000/" + id,
					Active:       true,
				})
				if err != nil {
					rt.Fatalf("register %s: %v", id, err)
				}

				m := model[id]
				active := true
				if m != nil {
					active = m.active // updates keep visibility
				}
				capSet := make(map[string]bool, len(caps))
				for _, c := range caps {
					capSet[c] = true
				}
				model[id] = &modelRecord{caps: capSet, active: active}

			case 1: // deactivate
				err := s.SetActive(id, false)
				if m := model[id]; m != nil {
					if err != nil {
						rt.Fatalf("deactivate %s: %v", id, err)
					}
					m.active = false
				} else if !types.IsCode(err, types.ErrNotFound) {
					rt.Fatalf("deactivate missing %s: expected NOT_FOUND, got %v", id, err)
				}

			case 2: // activate
				err := s.SetActive(id, true)
				if m := model[id]; m != nil {
					if err != nil {
						rt.Fatalf("activate %s: %v", id, err)
					}
					m.active = true
				} else if !types.IsCode(err, types.ErrNotFound) {
					rt.Fatalf("activate missing %s: expected NOT_FOUND, got %v", id, err)
				}

			case 3: // remove
				err := s.Remove(id)
				if model[id] != nil {
					if err != nil {
						rt.Fatalf("remove %s: %v", id, err)
					}
					delete(model, id)
				} else if !types.IsCode(err, types.ErrNotFound) {
					rt.Fatalf("remove missing %s: expected NOT_FOUND, got %v", id, err)
				}
			}
		}

		// Compare every 1- and 2-token query against the model.
		queries := [][]string{}
		for i, a := range capPool {
			queries = append(queries, []string{a})
			for _, b := range capPool[i+1:] {
				queries = append(queries, []string{a, b})
			}
		}

		for _, q := range queries {
			got := idsOf(s.CandidatesFor(q))
			sort.Strings(got)

			var want []string
			for id, m := range model {
				if !m.active {
					continue
				}
				all := true
				for _, tok := range q {
					if !m.caps[tok] {
						all = false
						break
					}
				}
				if all {
					want = append(want, id)
				}
			}
			sort.Strings(want)

			if len(got) != len(want) {
				rt.Fatalf("query %v: got %v, want %v", q, got, want)
			}
			for i := range got {
				if got[i] != want[i] {
					rt.Fatalf("query %v: got %v, want %v", q, got, want)
				}
			}
		}

		// The store never loses or invents records.
		total, _ := s.Count()
		if total != len(model) {
			rt.Fatalf("count: got %d records, model has %d", total, len(model))
		}
	})
}
