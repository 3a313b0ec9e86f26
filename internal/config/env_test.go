package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", "")

	cases := []struct {
		args []string
		want string
	}{
		{nil, ".env"},
		{[]string{"-c", "config.yaml", "-e", "prod.env"}, "prod.env"},
		{[]string{"--env-file", "a.env"}, "a.env"},
		{[]string{"--env-file=b.env", "--port", "80"}, "b.env"},
		{[]string{"-e"}, ".env"},
	}
	for _, tc := range cases {
		if got := EnvFile(tc.args); got != tc.want {
			t.Errorf("%v: expected %q, got %q", tc.args, tc.want, got)
		}
	}

	t.Setenv("ENV_FILE", "from-env.env")
	if got := EnvFile(nil); got != "from-env.env" {
		t.Errorf("expected ENV_FILE fallback, got %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("ENERGYMAP_TEST_PORT=9090\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENERGYMAP_TEST_PORT", "")
	os.Unsetenv("ENERGYMAP_TEST_PORT")

	if _, err := LoadDotEnv([]string{"-e", path}); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("ENERGYMAP_TEST_PORT"); got != "9090" {
		t.Errorf("expected 9090, got %q", got)
	}

	if _, err := LoadDotEnv([]string{"-e", filepath.Join(t.TempDir(), "missing.env")}); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
