package credentials

import (
	"errors"
	"sync"
	"testing"
)

func TestNewRotator_Empty(t *testing.T) {
	tests := []struct {
		name  string
		creds []string
	}{
		{"nil", nil},
		{"empty", []string{}},
		{"only blanks", []string{"", "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRotator(tt.creds)
			if !errors.Is(err, ErrNoCredentials) {
				t.Errorf("NewRotator() error = %v, want ErrNoCredentials", err)
			}
			if r != nil {
				t.Error("NewRotator() should return nil rotator on error")
			}
		})
	}
}

func TestRotator_RoundRobin(t *testing.T) {
	creds := []string{"a", "b", "c"}
	r, err := NewRotator(creds)
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}
	if r.Len() != len(creds) {
		t.Errorf("Len() = %d, want %d", r.Len(), len(creds))
	}

	// N calls return each credential once, in order
	for i, want := range creds {
		if got := r.Next(); got != want {
			t.Errorf("call %d: Next() = %q, want %q", i, got, want)
		}
	}

	// call N+1 repeats the first
	if got := r.Next(); got != "a" {
		t.Errorf("call %d: Next() = %q, want %q", len(creds), got, "a")
	}
}

func TestRotator_Single(t *testing.T) {
	r, err := NewRotator([]string{"only"})
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		idx, got := r.Pick()
		if got != "only" || idx != 0 {
			t.Fatalf("call %d: Pick() = (%d, %q), want (0, %q)", i, idx, got, "only")
		}
	}
}

func TestRotator_DoesNotAliasInput(t *testing.T) {
	creds := []string{"a", "b"}
	r, _ := NewRotator(creds)
	creds[0] = "mutated"

	if got := r.Next(); got != "a" {
		t.Errorf("Next() = %q, want %q", got, "a")
	}
}

func TestRotator_Concurrent(t *testing.T) {
	creds := []string{"a", "b", "c", "d"}
	r, _ := NewRotator(creds)

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[string]int)
			for i := 0; i < perWorker; i++ {
				local[r.Next()]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Atomic cursor: every credential is handed out exactly total/N times.
	want := workers * perWorker / len(creds)
	for _, c := range creds {
		if counts[c] != want {
			t.Errorf("credential %q handed out %d times, want %d", c, counts[c], want)
		}
	}
}
