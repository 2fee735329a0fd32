package fanout

import "github.com/hupe1980/calmesh/core"

// Reorder returns one envelope per requested key, in the order the keys were
// requested. Duplicate keys yield a single entry at their first position.
// Keys without a collected envelope get missing(key).
func Reorder[K comparable, V any](results map[K]V, requested []K, missing func(K) V) []core.Keyed[K, V] {
	out := make([]core.Keyed[K, V], 0, len(requested))
	seen := make(map[K]struct{}, len(requested))
	for _, k := range requested {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		v, ok := results[k]
		if !ok {
			v = missing(k)
		}
		out = append(out, core.Keyed[K, V]{Key: k, Value: v})
	}
	return out
}
