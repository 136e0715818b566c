package match

// Matcher classifies probe descriptors against the template store using a
// fixed distance threshold and an ambiguity epsilon. Both values come from
// the calibration config, not from code.
type Matcher struct {
	store     *TemplateStore
	threshold float64 // maximum cosine distance for an accepted match
	epsilon   float64 // two employees closer than this is ambiguous
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store *TemplateStore, threshold, epsilon float64) *Matcher {
	return &Matcher{
		store:     store,
		threshold: threshold,
		epsilon:   epsilon,
	}
}

// Match finds the enrolled employee whose nearest descriptor is closest to
// the probe. Returns a non-match when the store is empty, the best distance
// exceeds the threshold, or two different employees are within epsilon of
// each other (never guess between close candidates).
func (m *Matcher) Match(probe []float32) Result {
	candidates := m.store.nearest(probe, hnswSearchK)
	if len(candidates) == 0 {
		return Result{}
	}

	// Global best per employee: descriptors of the same employee form an
	// implicit ensemble, only the closest one counts.
	bestByEmployee := make(map[string]float64)
	for _, c := range candidates {
		if d, ok := bestByEmployee[c.desc.EmployeeID]; !ok || c.distance < d {
			bestByEmployee[c.desc.EmployeeID] = c.distance
		}
	}

	bestID := ""
	bestDist := 0.0
	runnerUpDist := 0.0
	first := true
	haveRunnerUp := false
	for empID, d := range bestByEmployee {
		switch {
		case first:
			bestID, bestDist = empID, d
			first = false
		case d < bestDist:
			runnerUpDist, haveRunnerUp = bestDist, true
			bestID, bestDist = empID, d
		case !haveRunnerUp || d < runnerUpDist:
			runnerUpDist, haveRunnerUp = d, true
		}
	}

	if bestDist > m.threshold {
		return Result{Distance: bestDist}
	}

	if haveRunnerUp && runnerUpDist-bestDist < m.epsilon && runnerUpDist <= m.threshold+m.epsilon {
		return Result{Ambiguous: true, Distance: bestDist}
	}

	emp, ok := m.store.Employee(bestID)
	if !ok || !emp.Active {
		return Result{Distance: bestDist}
	}

	confidence := 1 - bestDist
	if confidence < 0 {
		confidence = 0
	}

	return Result{
		Matched:    true,
		Employee:   emp,
		Distance:   bestDist,
		Confidence: confidence,
	}
}
