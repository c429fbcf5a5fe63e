package evaluation

// RestoreOrder undoes the loader permutation: payloads[k] was observed for
// dataset index ids[k] and ends up at position ids[k] of the result. ids
// must be a permutation of 0..len(ids)-1.
func RestoreOrder[T any](ids []int, payloads []T) ([]T, error) {
	if len(ids) != len(payloads) {
		return nil, violation("restore_order", "length", "%d ids for %d payloads", len(ids), len(payloads))
	}
	out := make([]T, len(ids))
	seen := make([]bool, len(ids))
	for k, id := range ids {
		if id < 0 || id >= len(ids) {
			return nil, violation("restore_order", "range", "index %d outside [0, %d)", id, len(ids))
		}
		if seen[id] {
			return nil, violation("restore_order", "duplicate", "index %d observed twice", id)
		}
		seen[id] = true
		out[id] = payloads[k]
	}
	return out, nil
}

// GroupBeams cuts a flat candidate sequence into consecutive groups of
// beamSize. The groups share the backing array of flat.
func GroupBeams[T any](flat []T, beamSize int) ([][]T, error) {
	if beamSize < 1 {
		return nil, violation("group_beams", "beam_size", "beam size %d", beamSize)
	}
	if len(flat)%beamSize != 0 {
		return nil, violation("group_beams", "length", "%d candidates not divisible by beam size %d", len(flat), beamSize)
	}
	groups := make([][]T, 0, len(flat)/beamSize)
	for i := 0; i < len(flat); i += beamSize {
		groups = append(groups, flat[i:i+beamSize:i+beamSize])
	}
	return groups, nil
}

func Flatten[T any](groups [][]T) []T {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]T, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
