package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	HTTP     HTTPConfig     `toml:"http"`
	Match    MatchConfig    `toml:"match"`
	Lane     LaneConfig     `toml:"lane"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Data     DataConfig     `toml:"data"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	StartTime int64  // set at boot, not from config
}

type HTTPConfig struct {
	BindAddress  string        `toml:"bind_address"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	QuizPerSec   float64       `toml:"quiz_per_second"` // quiz requests per match per second
	QuizBurst    int           `toml:"quiz_burst"`
}

// MatchConfig holds the economy, timing and base values of a single match.
type MatchConfig struct {
	TickRate          time.Duration `toml:"tick_rate"`
	EconomyInterval   time.Duration `toml:"economy_interval"`
	CountdownInterval time.Duration `toml:"countdown_interval"`
	AttackCooldown    time.Duration `toml:"attack_cooldown"`
	QuizTimeout       time.Duration `toml:"quiz_timeout"`
	DurationSeconds   int           `toml:"duration_seconds"`
	BaseMaxHealth     int           `toml:"base_max_health"`
	InitialGold       int           `toml:"initial_gold"`
	GoldPerSecond     int           `toml:"gold_per_second"`
	CorrectBonus      int           `toml:"correct_bonus"`
	WrongPenalty      int           `toml:"wrong_penalty"`
	WeakEnemyChance   float64       `toml:"weak_enemy_chance"`  // 0.0-1.0
	MaxMatches        int           `toml:"max_matches"`        // 0 = unlimited
	FinishedRetention time.Duration `toml:"finished_retention"` // how long finished matches stay queryable
}

// LaneConfig describes the one-dimensional lane in pixels.
type LaneConfig struct {
	PlayerBaseX     float64 `toml:"player_base_x"`
	EnemyBaseX      float64 `toml:"enemy_base_x"`
	PlayerSpawnX    float64 `toml:"player_spawn_x"`
	EnemySpawnX     float64 `toml:"enemy_spawn_x"`
	BaseHitDistance float64 `toml:"base_hit_distance"`
	RangeScale      float64 `toml:"range_scale"` // pixels per range unit
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables result persistence
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type DataConfig struct {
	UnitList   string `toml:"unit_list"`
	ScriptsDir string `toml:"scripts_dir"` // empty disables Lua combat formulas
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) Validate() error {
	m := c.Match
	if m.TickRate <= 0 || m.EconomyInterval <= 0 || m.CountdownInterval <= 0 {
		return errors.New("match: tick_rate, economy_interval and countdown_interval must be positive")
	}
	if m.AttackCooldown < 0 || m.QuizTimeout <= 0 {
		return errors.New("match: attack_cooldown must be >= 0 and quiz_timeout positive")
	}
	if m.DurationSeconds <= 0 || m.BaseMaxHealth <= 0 {
		return errors.New("match: duration_seconds and base_max_health must be positive")
	}
	if m.InitialGold < 0 || m.GoldPerSecond < 0 || m.CorrectBonus < 0 || m.WrongPenalty < 0 {
		return errors.New("match: gold values must not be negative")
	}
	if m.MaxMatches < 0 || m.FinishedRetention < 0 {
		return errors.New("match: max_matches and finished_retention must not be negative")
	}
	if m.WeakEnemyChance < 0 || m.WeakEnemyChance > 1 {
		return fmt.Errorf("match: weak_enemy_chance %v outside [0,1]", m.WeakEnemyChance)
	}
	l := c.Lane
	if l.PlayerBaseX >= l.EnemyBaseX {
		return errors.New("lane: player_base_x must be left of enemy_base_x")
	}
	if l.PlayerSpawnX >= l.EnemySpawnX {
		return errors.New("lane: player_spawn_x must be left of enemy_spawn_x")
	}
	if l.RangeScale <= 0 || l.BaseHitDistance < 0 {
		return errors.New("lane: range_scale must be positive and base_hit_distance >= 0")
	}
	// a unit spawned inside the opposing hit zone is consumed on its first tick
	if l.PlayerSpawnX >= l.EnemyBaseX-l.BaseHitDistance {
		return errors.New("lane: player_spawn_x lies inside the enemy base hit zone")
	}
	if l.EnemySpawnX <= l.PlayerBaseX+l.BaseHitDistance {
		return errors.New("lane: enemy_spawn_x lies inside the player base hit zone")
	}
	return nil
}

// Defaults returns the built-in configuration used when a key is absent.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "QuizBattle",
		},
		HTTP: HTTPConfig{
			BindAddress:  "0.0.0.0:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			QuizPerSec:   2,
			QuizBurst:    4,
		},
		Match: MatchConfig{
			TickRate:          16 * time.Millisecond,
			EconomyInterval:   time.Second,
			CountdownInterval: time.Second,
			AttackCooldown:    time.Second,
			QuizTimeout:       30 * time.Second,
			DurationSeconds:   180,
			BaseMaxHealth:     1000,
			InitialGold:       200,
			GoldPerSecond:     10,
			CorrectBonus:      50,
			WrongPenalty:      30,
			WeakEnemyChance:   0.3,
			MaxMatches:        256,
			FinishedRetention: 5 * time.Minute,
		},
		Lane: LaneConfig{
			PlayerBaseX:     0,
			EnemyBaseX:      1000,
			PlayerSpawnX:    60,
			EnemySpawnX:     940,
			BaseHitDistance: 20,
			RangeScale:      50,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Data: DataConfig{
			UnitList:   "data/yaml/unit_list.yaml",
			ScriptsDir: "scripts",
		},
	}
}
