package connector

import (
	"sync"
	"testing"
)

func TestPageCapEnforcesLimit(t *testing.T) {
	pages := newPageCap(3)

	for i := 0; i < 3; i++ {
		if !pages.take() {
			t.Fatalf("take %d denied under the cap", i)
		}
	}
	if pages.take() {
		t.Fatal("take granted past the cap")
	}
	if !pages.spent() {
		t.Fatal("cap not reported spent")
	}
}

func TestPageCapConcurrentTakes(t *testing.T) {
	pages := newPageCap(10)

	var wg sync.WaitGroup
	granted := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pages.take() {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	if n := len(granted); n != 10 {
		t.Fatalf("expected exactly 10 grants, got %d", n)
	}
}

func TestValidateURL(t *testing.T) {
	for _, valid := range []string{"https://example.com/docs", "http://example.com"} {
		if err := validateURL(valid); err != nil {
			t.Fatalf("rejected %q: %v", valid, err)
		}
	}
	for _, invalid := range []string{"ftp://example.com/file", "https://"} {
		if err := validateURL(invalid); err == nil {
			t.Fatalf("accepted %q", invalid)
		}
	}
}
