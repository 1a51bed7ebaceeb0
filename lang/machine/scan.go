package machine

import "github.com/Hell0XD/spsl/lang/bytecode"

// findElseOrEnd scans forward from ip (the first instruction of a
// conditional's true branch) tracking nested If*/End depth, and returns the
// index of the matching Else or End at depth 0 (spec.md §4.9: "the
// interpreter scans forward tracking nested If* and Else to find the
// matching Else at depth 0, or the matching End if no else exists").
func findElseOrEnd(instrs []bytecode.Instr, ip int) int {
	depth := 0
	for i := ip; i < len(instrs); i++ {
		switch {
		case bytecode.IsConditional(instrs[i].Op):
			depth++
		case instrs[i].Op == bytecode.End:
			if depth == 0 {
				return i
			}
			depth--
		case instrs[i].Op == bytecode.Else && depth == 0:
			return i
		}
	}
	return len(instrs)
}

// findEnd scans forward from ip tracking nested If*/End depth, ignoring any
// Else it passes over (an Else at depth 0 here belongs to the same block
// whose End we are looking for, not a new one to stop at), and returns the
// index of the matching End at depth 0. Used when linear execution falls
// into an Else after a true branch (spec.md §4.9: "Else encountered during
// linear execution... scans forward to the matching End").
func findEnd(instrs []bytecode.Instr, ip int) int {
	depth := 0
	for i := ip; i < len(instrs); i++ {
		switch {
		case bytecode.IsConditional(instrs[i].Op):
			depth++
		case instrs[i].Op == bytecode.End:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return len(instrs)
}
