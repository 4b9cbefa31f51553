package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseUploads(t *testing.T) {
	uploads, err := parseUploads([]string{"pitch deck=gs://decks/acme/deck.pdf", "LinkedIn Profile = file://profiles/jane.txt"})
	if err != nil {
		t.Fatalf("parseUploads: %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(uploads))
	}
	if uploads[0].FileType != "pitch deck" || uploads[0].FileName != "deck.pdf" || uploads[0].FilePath != "gs://decks/acme/deck.pdf" {
		t.Errorf("unexpected upload %+v", uploads[0])
	}
	if !uploads[1].IsLinkedIn() {
		t.Errorf("expected LinkedIn upload, got %+v", uploads[1])
	}

	for _, bad := range []string{"gs://decks/deck.pdf", "pitch deck="} {
		if _, err := parseUploads([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestReadInput(t *testing.T) {
	if got, err := readInput("Name: Acme", ""); err != nil || got != "Name: Acme" {
		t.Errorf("expected text passthrough, got %q %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "pitch.txt")
	os.WriteFile(path, []byte("Name: Acme\nStage: Seed\n"), 0o644)
	got, err := readInput("", path)
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	if got != "Name: Acme\nStage: Seed" {
		t.Errorf("unexpected file text %q", got)
	}

	if _, err := readInput("x", path); err == nil {
		t.Error("expected error when both text and file are set")
	}
}
