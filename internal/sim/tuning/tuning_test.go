package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Defaults()
	if got.PlayTime != want.PlayTime || got.Replay != want.Replay || got.RankingRate != want.RankingRate {
		t.Fatalf("defaults mismatch: %+v", got)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	p := writeYAML(t, `
play_time: 90
panel_rate: [2.0, 0.5]
score_rates: [1, 2, 3, 4, 5, 6]
replay:
  interval: 0.25
tutorial: [4, 5, 6]
start_position: [3, -2]
`)
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PlayTime != 90 {
		t.Fatalf("play_time=%v want 90", got.PlayTime)
	}
	if got.PlayTimeExtend != Defaults().PlayTimeExtend {
		t.Fatalf("play_time_extend should keep its default, got %v", got.PlayTimeExtend)
	}
	if got.Replay.Interval != 0.25 || got.Replay.Delay != Defaults().Replay.Delay {
		t.Fatalf("replay=%+v", got.Replay)
	}
	if got.ScoreRates != [6]float64{1, 2, 3, 4, 5, 6} {
		t.Fatalf("score_rates=%v", got.ScoreRates)
	}
	if len(got.Tutorial) != 3 || got.StartPosition != [2]int{3, -2} {
		t.Fatalf("tutorial=%v start=%v", got.Tutorial, got.StartPosition)
	}
	r := got.Rates()
	if r.Alpha != 2.0 || r.Beta != 0.5 || r.Score[5] != 6 {
		t.Fatalf("rates=%+v", r)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeYAML(t, "play_time: 90\n")
	t.Setenv("TILEGARDEN_PLAY_TIME", "42.5")
	t.Setenv("TILEGARDEN_REPLAY_SCORE_DELAY", "7")

	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PlayTime != 42.5 {
		t.Fatalf("play_time=%v want 42.5", got.PlayTime)
	}
	if got.Replay.ScoreDelay != 7 {
		t.Fatalf("score_delay=%v want 7", got.Replay.ScoreDelay)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	p := writeYAML(t, "ranking_rate: [1.0, 1.0, 10]\n")
	if _, err := Load(p); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}

	p = writeYAML(t, "score_rates: [1, 2]\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("short score_rates should fail")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("want not-exist, got %v", err)
	}
}
