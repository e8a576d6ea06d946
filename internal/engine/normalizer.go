package engine

// MetricNormalizer resolves metric-label spellings related by prefix into one
// canonical representative. Two labels belong to the same metric iff one is a
// textual prefix of the other, computed against the set of canonical labels
// seen so far. The canonical representative of a family converges to the
// shortest label seen; discovering a shorter prefix after longer variants
// were already grouped triggers a rename of the affected labels.
//
// Canonicalization rule: shortest label wins; when a new label relates to
// several known canonicals, all of them collapse into the shortest of the
// whole family. Two distinct labels of equal length cannot be prefixes of
// each other, so no further tie-break is needed.
type MetricNormalizer struct {
	// canonical holds the known canonical labels in first-seen order.
	canonical []string

	// resolved caches raw label → canonical label for labels already seen.
	resolved map[string]string
}

// NewMetricNormalizer creates an empty normalizer.
func NewMetricNormalizer() *MetricNormalizer {
	return &MetricNormalizer{
		resolved: make(map[string]string),
	}
}

// Canonicalize returns the canonical label for raw, registering raw as a new
// canonical label when it relates to nothing seen before. The renames map is
// non-nil only when the discovery of raw re-keys previously canonical labels
// (old canonical → new canonical); accumulated statistics under the old
// labels must be merged under the new one by the caller.
func (n *MetricNormalizer) Canonicalize(raw string) (canonical string, renames map[string]string) {
	if cached, ok := n.resolved[raw]; ok {
		return cached, nil
	}

	related := n.relatedCanonicals(raw)
	if len(related) == 0 {
		n.canonical = append(n.canonical, raw)
		n.resolved[raw] = raw

		return raw, nil
	}

	winner := shortestLabel(raw, related)

	renames = n.applyWinner(raw, winner, related)
	n.resolved[raw] = winner

	return winner, renames
}

// Lookup resolves raw against the frozen canonical label set without
// registering new labels. Used by the second pass, where every label has
// already been seen.
func (n *MetricNormalizer) Lookup(raw string) (string, bool) {
	if cached, ok := n.resolved[raw]; ok {
		return cached, true
	}

	related := n.relatedCanonicals(raw)
	if len(related) == 1 {
		return related[0], true
	}

	return "", false
}

// Labels returns the known canonical labels in first-seen order.
func (n *MetricNormalizer) Labels() []string {
	out := make([]string, len(n.canonical))
	copy(out, n.canonical)

	return out
}

// Restore re-seeds the normalizer with an already-canonical label set, in
// order. Used when resuming from a snapshot.
func (n *MetricNormalizer) Restore(labels []string) {
	n.canonical = append([]string(nil), labels...)
	n.resolved = make(map[string]string, len(labels))

	for _, label := range labels {
		n.resolved[label] = label
	}
}

// relatedCanonicals returns the known canonical labels that are a prefix of
// raw or have raw as a prefix, in first-seen order.
func (n *MetricNormalizer) relatedCanonicals(raw string) []string {
	var related []string

	for _, label := range n.canonical {
		if isPrefix(label, raw) || isPrefix(raw, label) {
			related = append(related, label)
		}
	}

	return related
}

// applyWinner rewrites the canonical label list so that winner replaces every
// related label, keeping the list position of the earliest member of the
// family. Returns the rename set for labels other than the winner.
func (n *MetricNormalizer) applyWinner(raw, winner string, related []string) map[string]string {
	renames := make(map[string]string)

	for _, label := range related {
		if label != winner {
			renames[label] = winner
		}
	}

	replaced := false
	kept := n.canonical[:0]

	for _, label := range n.canonical {
		if _, renamed := renames[label]; !renamed && label != winner {
			kept = append(kept, label)

			continue
		}

		if !replaced {
			kept = append(kept, winner)
			replaced = true
		}
	}

	if !replaced {
		kept = append(kept, winner)
	}

	n.canonical = kept

	// Re-point cached resolutions of renamed labels.
	for old, canon := range n.resolved {
		if _, renamed := renames[canon]; renamed {
			n.resolved[old] = winner
		}
	}

	if len(renames) == 0 {
		return nil
	}

	return renames
}

// shortestLabel returns the shortest among raw and the related labels.
// All candidates are mutually prefix-related, so lengths are distinct.
func shortestLabel(raw string, related []string) string {
	winner := raw

	for _, label := range related {
		if len(label) < len(winner) {
			winner = label
		}
	}

	return winner
}

func isPrefix(prefix, s string) bool {
	return len(prefix) <= len(s) && s[:len(prefix)] == prefix
}
