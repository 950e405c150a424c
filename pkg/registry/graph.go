package registry

// adjacency returns the outgoing references of a skill name, and whether the
// name is known at all
type adjacency func(name string) ([]string, bool)

const (
	unvisited = iota
	onStack
	done
)

// findCycle runs a depth-first search from start, tracking the recursion
// stack, and returns the first cycle found as a closed path such as
// [a b c a]. It returns nil when no cycle is reachable from start.
func findCycle(start string, adj adjacency) []string {
	state := make(map[string]int)
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = onStack
		path = append(path, name)

		refs, _ := adj(name)
		for _, ref := range refs {
			switch state[ref] {
			case onStack:
				return closeCycle(path, ref)
			case unvisited:
				if _, known := adj(ref); !known {
					continue
				}
				if cycle := visit(ref); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	return visit(start)
}

func closeCycle(path []string, back string) []string {
	for i, name := range path {
		if name == back {
			cycle := make([]string, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			return append(cycle, back)
		}
	}
	return []string{back, back}
}
