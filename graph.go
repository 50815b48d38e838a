package ydag

import "fmt"

// graph is the discovered closure for one run: every participating task in
// discovery order, plus the adjacency the scheduler needs. Discovery order
// is a pre-order DFS from each root with dependencies visited in declared
// order; it is the deterministic tie-break order for scheduling decisions.
type graph struct {
	tasks  []*Task
	index  map[*Task]int
	byName map[string]int

	// dependents[i] lists the discovery indices of tasks that depend on
	// tasks[i], in ascending discovery order.
	dependents [][]int
	indegree   []int
}

// discover computes the closure of tasks reachable from roots through
// dependency edges and validates it: no nil tasks, unique names, no cycles.
// Nodes are recorded by identity, so the same *Task reached over several
// paths appears once.
func discover(roots []*Task) (*graph, error) {
	g := &graph{
		index:  make(map[*Task]int),
		byName: make(map[string]int),
	}

	onPath := make(map[*Task]bool)
	var path []*Task

	var visit func(t *Task) error
	visit = func(t *Task) error {
		if t == nil {
			return &ValidationError{Reason: "nil task in graph"}
		}
		if onPath[t] {
			return cycleWitness(path, t)
		}
		if _, seen := g.index[t]; seen {
			return nil
		}
		if _, taken := g.byName[t.name]; taken {
			return &ValidationError{Reason: fmt.Sprintf("duplicate task name %q", t.name)}
		}

		idx := len(g.tasks)
		g.index[t] = idx
		g.byName[t.name] = idx
		g.tasks = append(g.tasks, t)

		onPath[t] = true
		path = append(path, t)
		for _, dep := range t.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		onPath[t] = false
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	g.dependents = make([][]int, len(g.tasks))
	g.indegree = make([]int, len(g.tasks))
	for i, t := range g.tasks {
		g.indegree[i] = len(t.deps)
		for _, dep := range t.deps {
			j := g.index[dep]
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	return g, nil
}

// cycleWitness extracts the cycle from the active recursion path, starting
// at the revisited task and closing the loop with it.
func cycleWitness(path []*Task, revisited *Task) *CycleError {
	start := 0
	for i, t := range path {
		if t == revisited {
			start = i
			break
		}
	}
	names := make([]string, 0, len(path)-start+1)
	for _, t := range path[start:] {
		names = append(names, t.name)
	}
	names = append(names, revisited.name)
	return &CycleError{Tasks: names}
}
