package exec

import "github.com/aaronmcdaid/buildcore/core"

// ruleIdentity pairs a parametrized-rule pointer with a dynamic nesting
// depth: the criterion for recognising that two executions on
// a path back to one another represent the same cyclic demand.
type ruleIdentity struct {
	rule  *core.Rule
	depth int
}

// findCycle performs a bounded DFS from parent over its
// own parent chain, comparing each ancestor's parametrized-rule pointer and
// dynamic depth against child's. Root ancestors terminate the search
// without matching. The walk uses the live parent chain already held on
// each execution rather than a separate ledger, since connect() only ever
// needs to check the single new edge it is about to create.
func findCycle(parent, child Execution) *core.BuildError {
	rule, depth := child.RuleIdentity()
	if rule == nil {
		return nil // executions with no backing rule (Concatenated, generic Dynamic) never cycle
	}
	id := ruleIdentity{rule, depth}

	visited := map[Execution]bool{parent: true}
	path := []Execution{parent}
	if !dfsForCycle(parent, id, visited, &path) {
		return nil
	}
	names := make([]string, 0, len(path)+1)
	for i := len(path) - 1; i >= 0; i-- {
		names = append(names, path[i].String())
	}
	names = append(names, child.String())
	return core.CycleError(names)
}

func dfsForCycle(e Execution, target ruleIdentity, visited map[Execution]bool, path *[]Execution) bool {
	rule, depth := e.RuleIdentity()
	if rule == target.rule && depth == target.depth {
		return true
	}
	for anc := range e.Base().parents {
		if anc.Kind() == KindRoot || visited[anc] {
			continue
		}
		if e.Base().LinkFrom(anc).Flags().Has(core.DynamicLeft) {
			continue // left-branch edges are internal, skip from the reported chain
		}
		visited[anc] = true
		*path = append(*path, anc)
		if dfsForCycle(anc, target, visited, path) {
			return true
		}
		*path = (*path)[:len(*path)-1]
	}
	return false
}
