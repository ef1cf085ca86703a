package optimize

import "sort"

// ParamGrid names the strategy parameters under search and each one's
// candidate values, per spec §4.11's optimize(strategy, data, paramGrid, ...).
type ParamGrid map[string][]any

// Enumerate returns the Cartesian product of grid's value lists as one
// params map per combination, in deterministic key order.
func Enumerate(grid ParamGrid) []map[string]any {
	if len(grid) == 0 {
		return []map[string]any{{}}
	}

	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]any{{}}
	for _, k := range keys {
		values := grid[k]
		next := make([]map[string]any, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, v := range values {
				c := make(map[string]any, len(combo)+1)
				for ck, cv := range combo {
					c[ck] = cv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}
