package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizbattle/server/internal/battle"
)

// MatchRepo stores terminal match results and their deploy logs.
type MatchRepo struct {
	db *DB
}

func NewMatchRepo(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// Record writes a result and its deploy log in a single transaction.
// Recording the same match twice is a no-op.
func (r *MatchRepo) Record(ctx context.Context, res battle.Result) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO match_results (match_id, winner, player_base_hp, enemy_base_hp, player_gold,
		        time_left, units_deployed, correct_answers, wrong_answers, enemies_spawned,
		        started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (match_id) DO NOTHING`,
		res.MatchID, string(res.Winner), res.PlayerBaseHealth, res.EnemyBaseHealth, res.PlayerGold,
		res.TimeLeft, res.UnitsDeployed, res.CorrectAnswers, res.WrongAnswers, res.EnemiesSpawned,
		res.StartedAt, res.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if len(res.Deployments) > 0 {
		batch := &pgx.Batch{}
		for i, d := range res.Deployments {
			batch.Queue(
				`INSERT INTO match_deployments (match_id, seq, tick, unit_type, correct, gold_after)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				res.MatchID, i, int64(d.Tick), d.UnitType, d.Correct, d.GoldAfter,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("record deployments: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const resultColumns = `match_id::text, winner, player_base_hp, enemy_base_hp, player_gold, time_left,
	units_deployed, correct_answers, wrong_answers, enemies_spawned, started_at, ended_at`

func scanResult(row pgx.Row) (battle.Result, error) {
	var res battle.Result
	var winner string
	err := row.Scan(
		&res.MatchID, &winner, &res.PlayerBaseHealth, &res.EnemyBaseHealth, &res.PlayerGold, &res.TimeLeft,
		&res.UnitsDeployed, &res.CorrectAnswers, &res.WrongAnswers, &res.EnemiesSpawned,
		&res.StartedAt, &res.EndedAt,
	)
	res.Winner = battle.Winner(winner)
	return res, err
}

// Recent lists up to limit results, newest first. Deploy logs are not loaded.
func (r *MatchRepo) Recent(ctx context.Context, limit int) ([]battle.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+resultColumns+` FROM match_results ORDER BY ended_at DESC, match_id LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []battle.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Get loads one result with its deploy log. Returns nil, nil if absent;
// an id that is not a UUID is never present.
func (r *MatchRepo) Get(ctx context.Context, matchID string) (*battle.Result, error) {
	id, err := uuid.Parse(matchID)
	if err != nil {
		return nil, nil
	}
	key := id.String()

	res, err := scanResult(r.db.Pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM match_results WHERE match_id = $1::uuid`, key,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT tick, unit_type, correct, gold_after FROM match_deployments
		 WHERE match_id = $1::uuid ORDER BY seq`, key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d battle.Deployment
		var tick int64
		if err := rows.Scan(&tick, &d.UnitType, &d.Correct, &d.GoldAfter); err != nil {
			return nil, err
		}
		d.Tick = uint64(tick)
		res.Deployments = append(res.Deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &res, nil
}
