package orchestrator

import "errors"

var (
	ErrGateDenied       = errors.New("orchestrator: state machine denied entry")
	ErrContractRejected = errors.New("orchestrator: trade contract rejected")
	ErrNotInPosition    = errors.New("orchestrator: symbol has no open position")
	ErrUnhandledAction  = errors.New("orchestrator: unhandled intent action")
)
