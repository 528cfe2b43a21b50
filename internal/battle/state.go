package battle

import "time"

// Winner is the terminal outcome of a match. Empty while running.
type Winner string

const (
	WinnerNone   Winner = ""
	WinnerPlayer Winner = "player"
	WinnerEnemy  Winner = "enemy"
	WinnerDraw   Winner = "draw"
)

// MatchState is the match-wide state. It is mutated only by the Battle and is
// frozen once GameOver is set.
type MatchState struct {
	PlayerGold       int    `json:"player_gold"`
	PlayerBaseHealth int    `json:"player_base_health"`
	EnemyBaseHealth  int    `json:"enemy_base_health"`
	BaseMaxHealth    int    `json:"base_max_health"`
	TimeLeft         int    `json:"time_left"` // seconds
	GameOver         bool   `json:"game_over"`
	Winner           Winner `json:"winner,omitempty"`
}

// Snapshot is an immutable copy of the match handed to the presentation layer.
type Snapshot struct {
	MatchID string     `json:"match_id"`
	Tick    uint64     `json:"tick"`
	State   MatchState `json:"state"`
	Units   []UnitView `json:"units"`
	Pending int        `json:"pending_quizzes"`
}

// Result is the terminal output of a match, handed to whoever records it.
type Result struct {
	MatchID          string    `json:"match_id"`
	Winner           Winner    `json:"winner"`
	PlayerBaseHealth int       `json:"player_base_health"`
	EnemyBaseHealth  int       `json:"enemy_base_health"`
	PlayerGold       int       `json:"player_gold"`
	TimeLeft         int       `json:"time_left"`
	UnitsDeployed    int       `json:"units_deployed"`
	CorrectAnswers   int       `json:"correct_answers"`
	WrongAnswers     int       `json:"wrong_answers"`
	EnemiesSpawned   int       `json:"enemies_spawned"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`

	Deployments []Deployment `json:"deployments,omitempty"`
}

// Deployment records one accepted player deploy.
type Deployment struct {
	Tick      uint64 `json:"tick"`
	UnitType  string `json:"unit_type"`
	Correct   bool   `json:"correct"`
	GoldAfter int    `json:"gold_after"`
}

type stats struct {
	deployed int
	correct  int
	wrong    int
	enemies  int
	log      []Deployment
}
