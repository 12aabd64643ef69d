package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Field.Width != 1024 || cfg.Field.Height != 1024 {
		t.Errorf("field size = %dx%d, want 1024x1024", cfg.Field.Width, cfg.Field.Height)
	}
	if cfg.Index.ResortInterval != 100 {
		t.Errorf("resort interval = %d, want 100", cfg.Index.ResortInterval)
	}
	if cfg.Tiers.SimplifiedInterval != 10 {
		t.Errorf("simplified interval = %d, want 10", cfg.Tiers.SimplifiedInterval)
	}
	if cfg.Derived.FullCapacity != 2*cfg.Population.Full {
		t.Errorf("derived capacity = %d, want %d", cfg.Derived.FullCapacity, 2*cfg.Population.Full)
	}
	ts := cfg.Derived.TableSize
	if ts&(ts-1) != 0 || ts < 2*cfg.Derived.FullCapacity {
		t.Errorf("table size %d is not a power of two >= 2*capacity", ts)
	}
	if cfg.Derived.Decay[1] != 0.02 {
		t.Errorf("danger decay = %v, want 0.02", cfg.Derived.Decay[1])
	}
}

func TestLoad_UserOverridesMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := []byte("population:\n  full: 500\nphysics:\n  contagion: 0.6\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Population.Full != 500 {
		t.Errorf("full = %d, want 500", cfg.Population.Full)
	}
	if cfg.Physics.Contagion != 0.6 {
		t.Errorf("contagion = %v, want 0.6", cfg.Physics.Contagion)
	}
	// Untouched keys keep their defaults
	if cfg.Physics.SurpriseDecay != 0.95 {
		t.Errorf("surprise decay = %v, want 0.95", cfg.Physics.SurpriseDecay)
	}
	if cfg.Derived.FullCapacity != 1000 {
		t.Errorf("capacity = %d, want 1000", cfg.Derived.FullCapacity)
	}
}

func TestValidate_RejectsUnstableDiffusion(t *testing.T) {
	cfg := Default()
	cfg.Field.Diffusion[1] = 0.3
	if err := cfg.Finalize(); err == nil {
		t.Error("expected diffusion 0.3 to be rejected")
	}
}

func TestValidate_RejectsBadShapes(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero world":       func(c *Config) { c.World.Width = 0 },
		"short decay":      func(c *Config) { c.Field.Decay = c.Field.Decay[:3] },
		"tiny field":       func(c *Config) { c.Field.Width = 1 },
		"spawn mode":       func(c *Config) { c.World.Spawn = "spiral" },
		"capacity":         func(c *Config) { c.Population.FullCapacity = c.Population.Full - 1 },
		"zero stride":      func(c *Config) { c.Physics.DepositStride = 0 },
		"zero temperature": func(c *Config) { c.Pollination.Temperature = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestNextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {1000, 1024}, {1024, 1024}, {1025, 2048},
	}
	for _, c := range cases {
		if got := NextPow2(c.in); got != c.want {
			t.Errorf("NextPow2(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Population.Full = 1234
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Population.Full != 1234 {
		t.Errorf("full = %d, want 1234", loaded.Population.Full)
	}
}
