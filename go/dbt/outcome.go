package dbt

type OutcomeKind uint8

const (
	Continue OutcomeKind = iota
	Jump
	Call
	Return
	Trap
	Fault
	Halt
)

var outcomeNames = [...]string{"continue", "jump", "call", "return", "trap", "fault", "halt"}

func (k OutcomeKind) String() string {
	if int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return "unknown"
}

// Outcome is what one instruction's semantics asks the engine to do next.
// The zero value is Continue.
type Outcome struct {
	Kind   OutcomeKind
	Target uint64
	// return address for Call
	Ret uint64
	// trap number for Trap
	Trap int
	// fault for Fault, optional reason for Halt
	Err error
}

var Next = Outcome{}

func Jumped(addr uint64) Outcome { return Outcome{Kind: Jump, Target: addr} }
func Called(addr, ret uint64) Outcome { return Outcome{Kind: Call, Target: addr, Ret: ret} }
func Returned(addr uint64) Outcome { return Outcome{Kind: Return, Target: addr} }
func Trapped(kind int) Outcome { return Outcome{Kind: Trap, Trap: kind} }
func Faulted(err error) Outcome { return Outcome{Kind: Fault, Err: err} }
func Halted(err error) Outcome { return Outcome{Kind: Halt, Err: err} }
