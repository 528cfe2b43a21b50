package battle

// Events emitted on the battle bus. They are delivered when the current tick
// or action finishes, in emission order, followed by a StateChanged snapshot.

type UnitSpawned struct {
	Unit UnitView
}

type UnitDestroyed struct {
	ID     string
	Team   Team
	TypeID string
	Reason string // "killed" or "base"
}

type UnitAttacked struct {
	Attacker     string
	Target       string
	Damage       int
	TargetHealth int
}

type BaseHit struct {
	Base   Team // owner of the damaged base
	Unit   string
	Damage int
	Health int
}

type QuizRequested struct {
	Request QuizRequest
}

type QuizResolved struct {
	Token    QuizToken
	UnitID   string
	Verdict  Verdict
	Deployed bool
}

type GameOver struct {
	Result Result
}

type StateChanged struct {
	Snapshot Snapshot
}

const (
	reasonKilled = "killed"
	reasonBase   = "base"
)
