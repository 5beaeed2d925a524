package logger

import "testing"

func TestNewBuildsForEveryEnv(t *testing.T) {
	for _, env := range []string{"dev", "production", ""} {
		log, err := New(env)
		if err != nil {
			t.Fatalf("New(%q): %v", env, err)
		}
		log.Info("logger ready")
	}
}

func TestNamedNil(t *testing.T) {
	if Named(nil, "share") == nil {
		t.Fatal("Named(nil) must return a usable logger")
	}
}
