package exception

import "errors"

var (
	ErrRiskCreditExceeded   = errors.New("risk: credit limit exceeded")
	ErrRiskPositionExceeded = errors.New("risk: position limit exceeded")
	ErrRiskKeyHalted        = errors.New("risk: evaluation halted for key")
	ErrRiskStateCorrupt     = errors.New("risk: committed state violates invariant")
)
