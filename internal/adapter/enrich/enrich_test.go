package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"parley/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnrichFillsEmptyTitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>
			Fetched &amp;   Title
		</title></head><body></body></html>`)
	}))
	defer srv.Close()

	e := New(0, discardLogger())
	got := e.Enrich(context.Background(), []domain.Citation{
		{URL: srv.URL + "/a"},
		{URL: srv.URL + "/b", Title: "Already Set"},
		{Title: "No URL"},
	})

	if got[0].Title != "Fetched & Title" {
		t.Errorf("title = %q, want entities unescaped and whitespace collapsed", got[0].Title)
	}
	if got[1].Title != "Already Set" {
		t.Errorf("existing title overwritten: %q", got[1].Title)
	}
	if got[2].Title != "No URL" {
		t.Errorf("citation without url changed: %+v", got[2])
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<title>New</title>`)
	}))
	defer srv.Close()

	in := []domain.Citation{{URL: srv.URL}}
	e := New(0, discardLogger())
	out := e.Enrich(context.Background(), in)

	if in[0].Title != "" {
		t.Error("input slice was mutated")
	}
	if out[0].Title != "New" {
		t.Errorf("output title = %q", out[0].Title)
	}
}

func TestEnrichCachesTitles(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<title>Cached</title>`)
	}))
	defer srv.Close()

	e := New(time.Minute, discardLogger())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.Enrich(ctx, []domain.Citation{{URL: srv.URL}})
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1 (cache)", hits.Load())
	}
}

func TestEnrichDegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(0, discardLogger())
	got := e.Enrich(context.Background(), []domain.Citation{{URL: srv.URL}})
	if got[0].Title != "" {
		t.Errorf("title = %q, want unenriched citation on a page without <title>", got[0].Title)
	}
}

func TestEnrichCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `<title>Too Late</title>`)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e := New(0, discardLogger())
	start := time.Now()
	got := e.Enrich(ctx, []domain.Citation{{URL: srv.URL}})

	if got[0].Title != "" {
		t.Errorf("cancelled enrichment still set title %q", got[0].Title)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation did not stop the fetch promptly")
	}
}
