package cartpayment

// adjustmentResolution names how an amount change is carried out against the
// gateway.
type adjustmentResolution string

const (
	resolutionNoop             adjustmentResolution = "noop"
	resolutionReprice          adjustmentResolution = "reprice"
	resolutionAdditionalCharge adjustmentResolution = "additional_charge"
	resolutionPartialRefund    adjustmentResolution = "partial_refund"
)

// adjustmentDecision is the resolver output. DeltaCents is the positive
// amount moved for additional_charge and partial_refund; for reprice it is
// the signed difference between requested and current.
type adjustmentDecision struct {
	Resolution adjustmentResolution
	DeltaCents int64
}

// resolveAdjustment picks the single gateway operation that reconciles the
// current amount with the requested one. Pre-capture the gateway intent is
// simply re-priced; post-capture an increase charges the delta off session
// and a decrease refunds it against existing charges. Direction is chosen
// once by comparing amounts; a failure of the chosen direction never falls
// back to the other.
func resolveAdjustment(currentCents, requestedCents int64, captured bool) adjustmentDecision {
	switch {
	case requestedCents == currentCents:
		return adjustmentDecision{Resolution: resolutionNoop}
	case !captured:
		return adjustmentDecision{Resolution: resolutionReprice, DeltaCents: requestedCents - currentCents}
	case requestedCents > currentCents:
		return adjustmentDecision{Resolution: resolutionAdditionalCharge, DeltaCents: requestedCents - currentCents}
	default:
		return adjustmentDecision{Resolution: resolutionPartialRefund, DeltaCents: currentCents - requestedCents}
	}
}
