package capability

import "reflect"

// Overlay deep-merges defaults into base without overwriting anything the
// caller already set: maps recurse, missing keys are filled, and lists are
// concatenated with structural-equality dedup preserving first-seen order.
// Scalar values present in base always win. Neither argument is mutated.
func Overlay(base, defaults map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(defaults))
	for k, v := range base {
		out[k] = v
	}
	for k, dv := range defaults {
		bv, ok := out[k]
		if !ok || bv == nil {
			out[k] = dv
			continue
		}
		bm, bok := bv.(map[string]any)
		dm, dok := dv.(map[string]any)
		if bok && dok {
			out[k] = Overlay(bm, dm)
			continue
		}
		bl, bok := bv.([]any)
		dl, dok := dv.([]any)
		if bok && dok {
			out[k] = mergeLists(bl, dl)
			continue
		}
		// Scalar conflict: the explicit value stays.
	}
	return out
}

func mergeLists(base, defaults []any) []any {
	out := make([]any, 0, len(base)+len(defaults))
	out = append(out, base...)
	for _, d := range defaults {
		if !containsEqual(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func containsEqual(list []any, v any) bool {
	for _, e := range list {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
