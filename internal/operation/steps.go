package operation

// Step is one coarse stage of an operation.
type Step struct {
	Name  string
	Label string
	seen  func(Progress) bool
}

func always(Progress) bool { return true }

var mintSteps = []Step{
	{Name: "requested", Label: "Mint requested", seen: always},
	{Name: "submitted", Label: "Transaction submitted", seen: func(p Progress) bool { return p.TxHash != "" }},
	{Name: "minted", Label: "Token minted", seen: func(p Progress) bool { return p.TokenID != "" }},
}

var forgeSteps = []Step{
	{Name: "requested", Label: "Forge requested", seen: always},
	{Name: "burned", Label: "Inputs burned", seen: func(p Progress) bool { return p.BurnTxHash != "" }},
	{Name: "minted", Label: "Output minted", seen: func(p Progress) bool { return p.MintTxHash != "" }},
	{Name: "delivered", Label: "Token delivered", seen: func(p Progress) bool { return p.TokenID != "" }},
}

// Steps returns the ordered stages for kind.
func Steps(kind Kind) []Step {
	switch kind {
	case KindForge:
		return forgeSteps
	default:
		return mintSteps
	}
}

// DeriveStep infers progress purely from which fields are present. The
// highest evidenced step wins, so earlier steps count as done even when their
// own field is missing. A confirmed operation is past every step.
func DeriveStep(kind Kind, status Status, progress Progress) int {
	steps := Steps(kind)
	if status == StatusConfirmed {
		return len(steps)
	}
	derived := 0
	for i, step := range steps {
		if step.seen(progress) {
			derived = i
		}
	}
	return derived
}
