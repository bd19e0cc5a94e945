package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"tilegarden.ai/internal/sim/scoring"
)

// EnvPrefix prefixes every environment override, e.g. TILEGARDEN_PLAY_TIME.
const EnvPrefix = "TILEGARDEN_"

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	// Seconds of play; PlayTimeExtend replaces it for purchased sessions.
	PlayTime       float64 `yaml:"play_time" env:"PLAY_TIME"`
	PlayTimeExtend float64 `yaml:"play_time_extend" env:"PLAY_TIME_EXTEND"`

	// PanelRate is (alpha, beta) of the region term.
	PanelRate        [2]float64 `yaml:"panel_rate"`
	ScoreRates       [6]float64 `yaml:"score_rates"`
	RankingRate      [3]float64 `yaml:"ranking_rate"`
	PerfectScoreRate float64    `yaml:"perfect_score_rate" env:"PERFECT_SCORE_RATE"`

	Replay Replay `yaml:"replay" envPrefix:"REPLAY_"`

	// Tutorial is the fixed draw order of a tutorial session; the first entry
	// is the start panel.
	Tutorial      []int  `yaml:"tutorial"`
	StartPosition [2]int `yaml:"start_position"`
}

// Replay timings are seconds on the session's callback queue clock.
type Replay struct {
	Delay      float64 `yaml:"delay" env:"DELAY"`
	Interval   float64 `yaml:"interval" env:"INTERVAL"`
	ScoreDelay float64 `yaml:"score_delay" env:"SCORE_DELAY"`
}

func Defaults() Tuning {
	return Tuning{
		PlayTime:         180,
		PlayTimeExtend:   300,
		PanelRate:        [2]float64{1.5, 1.0},
		ScoreRates:       [6]float64{1.0, 1.0, 0.5, 5.0, 10.0, 1.0},
		RankingRate:      [3]float64{1.6, 1.0, 40},
		PerfectScoreRate: 1.5,
		Replay: Replay{
			Delay:      1.0,
			Interval:   0.1,
			ScoreDelay: 2.0,
		},
		Tutorial: []int{0, 13, 35, 1, 17, 23, 27, 32, 36, 37, 30, 7},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path means defaults plus environment.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	if err := ParseEnv(&t); err != nil {
		return t, err
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// ParseEnv overwrites fields whose TILEGARDEN_* variable is set.
func ParseEnv(t *Tuning) error {
	if err := env.ParseWithOptions(t, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (t Tuning) Validate() error {
	switch {
	case t.PlayTime <= 0 || t.PlayTimeExtend <= 0:
		return fmt.Errorf("%w: play times must be positive", ErrInvalid)
	case t.PanelRate[0] <= 0 || t.PanelRate[1] < 0:
		return fmt.Errorf("%w: panel_rate must be (alpha>0, beta>=0)", ErrInvalid)
	case t.RankingRate[0] <= 1 || t.RankingRate[1] <= 0 || t.RankingRate[2] <= 0:
		return fmt.Errorf("%w: ranking_rate must be (x>1, y>0, z>0)", ErrInvalid)
	case t.PerfectScoreRate < 1:
		return fmt.Errorf("%w: perfect_score_rate must be >= 1", ErrInvalid)
	case t.Replay.Delay < 0 || t.Replay.Interval < 0 || t.Replay.ScoreDelay < 0:
		return fmt.Errorf("%w: replay timings must be >= 0", ErrInvalid)
	}
	for i, r := range t.ScoreRates {
		if r < 0 {
			return fmt.Errorf("%w: score_rates[%d] is negative", ErrInvalid, i)
		}
	}
	for i, id := range t.Tutorial {
		if id < 0 {
			return fmt.Errorf("%w: tutorial[%d] is negative", ErrInvalid, i)
		}
	}
	return nil
}

// Rates converts the score parameters for the scoring package.
func (t Tuning) Rates() scoring.Rates {
	return scoring.Rates{
		Alpha:   t.PanelRate[0],
		Beta:    t.PanelRate[1],
		Score:   t.ScoreRates,
		Perfect: t.PerfectScoreRate,
		Ranking: t.RankingRate,
	}
}
