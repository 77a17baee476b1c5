package api

// Usage is the free-form usage block reported by the upstream. Numeric
// leaves arrive as float64 from JSON decoding.
type Usage map[string]any

// MergeUsage merges src into a copy of dst: numeric leaves are summed,
// nested maps merged recursively, and any other value overwrites. Keys
// present in dst are never removed. Numeric merging is commutative, so the
// accumulated totals do not depend on turn arrival order.
func MergeUsage(dst, src Usage) Usage {
	out := make(Usage, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		prev, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		pn, pok := toNumber(prev)
		sn, sok := toNumber(v)
		if pok && sok {
			out[k] = pn + sn
			continue
		}
		pm, pok2 := toUsageMap(prev)
		sm, sok2 := toUsageMap(v)
		if pok2 && sok2 {
			out[k] = MergeUsage(pm, sm)
			continue
		}
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toUsageMap(v any) (Usage, bool) {
	switch m := v.(type) {
	case Usage:
		return m, true
	case map[string]any:
		return Usage(m), true
	}
	return nil, false
}
