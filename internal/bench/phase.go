package bench

// Phase is the stage a target's campaign is in.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseWarmup   Phase = "warmup"
	PhaseMeasured Phase = "measured"
	PhaseDone     Phase = "done"
)
