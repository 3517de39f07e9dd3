// Package recount recomputes the stored product totals of the category forest.
//
// A category's total is its own direct product count plus the totals of all of its
// children. Totals are cached on the category rows and refreshed by a maintenance run;
// only rows whose total actually changed are written back.
package recount

import (
	"sort"

	"metal-catalog-service/internal/domain"
)

// Update is a pending write of a category's recomputed total.
type Update struct {
	CategoryID int64 `json:"category_id"`
	Previous   int   `json:"previous"`
	Total      int   `json:"total"`
}

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// ComputeTotals returns the total product count of every category.
//
// A parent reference to an unknown id (or to the category itself) is treated as a root.
// Traversal is an iterative post-order walk, so deep trees never grow the call stack.
// Each category is summed once and reused by all of its ancestors.
func ComputeTotals(categories []domain.CategoryCount, direct map[int64]int) map[int64]int {
	known := make(map[int64]bool, len(categories))
	ids := make([]int64, 0, len(categories))
	for _, c := range categories {
		if known[c.ID] {
			continue
		}
		known[c.ID] = true
		ids = append(ids, c.ID)
	}

	children := make(map[int64][]int64, len(categories))
	linked := make(map[int64]bool, len(categories))
	for _, c := range categories {
		if linked[c.ID] {
			continue
		}
		linked[c.ID] = true
		if c.ParentCategoryID == nil {
			continue
		}
		parent := *c.ParentCategoryID
		if parent == c.ID || !known[parent] {
			continue
		}
		children[parent] = append(children[parent], c.ID)
	}

	totals := make(map[int64]int, len(ids))
	state := make(map[int64]visitState, len(ids))

	type frame struct {
		id       int64
		expanded bool
	}
	stack := make([]frame, 0, 16)

	for _, start := range ids {
		if state[start] != unvisited {
			continue
		}
		stack = append(stack[:0], frame{id: start})

		for len(stack) > 0 {
			top := len(stack) - 1
			id := stack[top].id

			if !stack[top].expanded {
				stack[top].expanded = true
				state[id] = inProgress
				for _, child := range children[id] {
					// inProgress here means a cycle in malformed data; the back edge is dropped.
					if state[child] == unvisited {
						stack = append(stack, frame{id: child})
					}
				}
				continue
			}

			sum := direct[id]
			for _, child := range children[id] {
				if state[child] == done {
					sum += totals[child]
				}
			}
			totals[id] = sum
			state[id] = done
			stack = stack[:top]
		}
	}
	return totals
}

// PlanUpdates lists the categories whose computed total differs from the stored one,
// ordered by category id.
func PlanUpdates(categories []domain.CategoryCount, totals map[int64]int) []Update {
	seen := make(map[int64]bool, len(categories))
	var updates []Update
	for _, c := range categories {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		total, ok := totals[c.ID]
		if !ok || total == c.ProductCount {
			continue
		}
		updates = append(updates, Update{CategoryID: c.ID, Previous: c.ProductCount, Total: total})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].CategoryID < updates[j].CategoryID })
	return updates
}
