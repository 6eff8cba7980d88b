package gallery

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/store"
)

type fakeFetcher struct {
	data []byte
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, f.err
}

func TestSaveSubmissionWritesFileAndArchives(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{data: []byte("png-bytes")}
	archive := store.NewInMemoryStore()
	g := New(root, fetcher, archive)

	path, err := g.SaveSubmission(context.Background(), flow.SubmissionResult{
		Artist:       "Shiro",
		SourcePrefix: "P",
		ArtworkID:    "123456",
		ImageURL:     "https://img.example.com/a.png",
		ImageExt:     ".png",
		SubmittedBy:  100,
		GroupID:      10,
	})
	if err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	want := filepath.Join(root, "Shiro", "P_123456.png")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("stored file = %q, %v", data, err)
	}

	subs, err := archive.GetSubmissions()
	if err != nil {
		t.Fatalf("GetSubmissions failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ImagePath != want || subs[0].SubmittedBy != 100 {
		t.Errorf("archived submission = %+v", subs)
	}
}

func TestSaveSubmissionFetchFailure(t *testing.T) {
	g := New(t.TempDir(), &fakeFetcher{err: errors.New("connection refused")}, store.NewInMemoryStore())

	_, err := g.SaveSubmission(context.Background(), flow.SubmissionResult{
		Artist: "Shiro", SourcePrefix: "X", ArtworkID: "1", ImageURL: "https://x/y.jpg", ImageExt: ".jpg",
	})
	if err == nil {
		t.Fatal("expected an error when the image download fails")
	}
}

func TestRecommendBuildsMessage(t *testing.T) {
	root := t.TempDir()
	artistDir := filepath.Join(root, "Shiro")
	if err := os.MkdirAll(artistDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(artistDir, "P_123456.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := New(root, &fakeFetcher{}, nil, WithRandSource(rand.NewSource(1)))
	msg, err := g.Recommend(context.Background(), 42)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}

	if len(msg) != 3 {
		t.Fatalf("message has %d segments, want 3", len(msg))
	}
	if msg[0].Type != models.SegmentMention || msg[0].UserID != 42 {
		t.Errorf("first segment = %+v", msg[0])
	}
	text := msg[1].Text
	if !strings.Contains(text, "Artist: Shiro") || !strings.Contains(text, "Pixiv") || !strings.Contains(text, "ID: 123456") {
		t.Errorf("text = %q", text)
	}
	if msg[2].Type != models.SegmentImage || !strings.HasPrefix(msg[2].File, "file://") {
		t.Errorf("image segment = %+v", msg[2])
	}
}

func TestRecommendEmptyGallery(t *testing.T) {
	g := New(t.TempDir(), &fakeFetcher{}, nil)
	_, err := g.Recommend(context.Background(), 1)
	if !errors.Is(err, models.ErrNoSuitableContent) {
		t.Errorf("error = %v, want ErrNoSuitableContent", err)
	}
}

func TestDescribeImage(t *testing.T) {
	cases := []struct {
		name       string
		wantSource string
		wantID     string
	}{
		{"P_123.png", "Pixiv", "123"},
		{"B_77.jpg", "Bilibili post", "77"},
		{"X_9.gif", "X post", "9"},
		{"BV_BV1xx411c7mD.png", "Bilibili video", "BV1xx411c7mD"},
		{"mystery.png", "unknown source", "unknown"},
	}
	for _, tc := range cases {
		source, id := describeImage(tc.name)
		if source != tc.wantSource || id != tc.wantID {
			t.Errorf("describeImage(%q) = %q, %q; want %q, %q", tc.name, source, id, tc.wantSource, tc.wantID)
		}
	}
}
