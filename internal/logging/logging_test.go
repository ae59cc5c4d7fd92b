package logging

import "testing"

func TestNew(t *testing.T) {
	for _, prod := range []bool{true, false} {
		log, err := New(prod)
		if err != nil {
			t.Fatalf("New(%v): %v", prod, err)
		}
		log.Info("hello")
		_ = log.Sync()
	}
}
