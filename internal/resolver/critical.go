package resolver

// CriticalPath returns one of the longest chains of hard dependencies
// through the resolved DAG, in execution order. Tasks on cycles are
// excluded. Used as a proxy for minimum wall-clock time.
func (g *Graph) CriticalPath() []string {
	onBatch := make(map[string]bool)
	for _, batch := range g.Batches {
		for _, id := range batch {
			onBatch[id] = true
		}
	}

	// Longest chain ending at each node, computed over the flat order so
	// every dependency is finalized before its dependents.
	depth := make(map[string]int, len(onBatch))
	prev := make(map[string]string, len(onBatch))
	for _, id := range g.Order {
		best := 0
		bestDep := ""
		for _, dep := range g.hard[id] {
			if !onBatch[dep] {
				continue
			}
			if depth[dep]+1 > best {
				best = depth[dep] + 1
				bestDep = dep
			}
		}
		depth[id] = best
		prev[id] = bestDep
	}

	end := ""
	for _, id := range g.Order {
		if end == "" || depth[id] > depth[end] {
			end = id
		}
	}
	if end == "" {
		return nil
	}

	var chain []string
	for id := end; id != ""; id = prev[id] {
		chain = append(chain, id)
	}
	// Reverse into execution order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
