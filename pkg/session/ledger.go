package session

// Step is a billable draft pipeline step.
type Step int

const (
	StepResearch Step = iota
	StepProposals
	StepExpand
	StepRevise
	numSteps
)

// Steps lists every step in pipeline order.
var Steps = []Step{StepResearch, StepProposals, StepExpand, StepRevise}

func (s Step) String() string {
	switch s {
	case StepResearch:
		return "research"
	case StepProposals:
		return "proposals"
	case StepExpand:
		return "expand"
	case StepRevise:
		return "revise"
	default:
		return "unknown"
	}
}

// CostLedger tracks USD spent per step plus a running total. It is a value:
// Add returns an updated copy, so a step that fails never commits its cost.
type CostLedger struct {
	steps [numSteps]float64
	total float64
}

// Add returns the ledger with usd charged to step and to the total.
func (c CostLedger) Add(step Step, usd float64) CostLedger {
	if step < 0 || step >= numSteps {
		return c
	}
	c.steps[step] += usd
	c.total += usd
	return c
}

// Step returns what step has cost so far.
func (c CostLedger) Step(step Step) float64 {
	if step < 0 || step >= numSteps {
		return 0
	}
	return c.steps[step]
}

// Total is the running total, maintained by Add.
func (c CostLedger) Total() float64 {
	return c.total
}
