// Package gallery owns the fan-art image library: persisting completed
// submissions to disk (and the archive) and recommending a random piece.
package gallery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/store"
)

// DirPermissions is the mode for created artist directories.
const DirPermissions = 0755

// DefaultFetchTimeout bounds one image download.
const DefaultFetchTimeout = 30 * time.Second

// Fetcher downloads an image by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the production Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: DefaultFetchTimeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	return data, nil
}

// Gallery stores submitted images under root/<artist>/<prefix>_<id><ext>
// and records each accepted submission in the archive.
type Gallery struct {
	root    string
	fetcher Fetcher
	archive store.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Gallery.
type Option func(*Gallery)

// WithRandSource fixes the random source, for deterministic tests.
func WithRandSource(src rand.Source) Option {
	return func(g *Gallery) {
		g.rng = rand.New(src)
	}
}

// New creates a gallery rooted at root.
func New(root string, fetcher Fetcher, archive store.Store, opts ...Option) *Gallery {
	g := &Gallery{
		root:    root,
		fetcher: fetcher,
		archive: archive,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	slog.Debug("Creating Gallery", "root", root)
	return g
}

// SaveSubmission downloads the submitted image, writes it into the artist's
// directory, and archives the record. It returns the stored file path.
func (g *Gallery) SaveSubmission(ctx context.Context, sub flow.SubmissionResult) (string, error) {
	data, err := g.fetcher.Fetch(ctx, sub.ImageURL)
	if err != nil {
		return "", fmt.Errorf("failed to download submitted image: %w", err)
	}

	artistDir := filepath.Join(g.root, sub.Artist)
	if err := os.MkdirAll(artistDir, DirPermissions); err != nil {
		return "", fmt.Errorf("failed to create artist directory: %w", err)
	}

	fileName := fmt.Sprintf("%s_%s%s", sub.SourcePrefix, sub.ArtworkID, sub.ImageExt)
	finalPath := filepath.Join(artistDir, fileName)
	if err := os.WriteFile(finalPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	slog.Info("Gallery stored submission", "path", finalPath, "artist", sub.Artist)

	if g.archive != nil {
		_, err := g.archive.AddSubmission(store.Submission{
			Artist:       sub.Artist,
			SourcePrefix: sub.SourcePrefix,
			ArtworkID:    sub.ArtworkID,
			ImagePath:    finalPath,
			SubmittedBy:  sub.SubmittedBy,
			GroupID:      sub.GroupID,
		})
		if err != nil {
			// The file is already on disk; the archive record is best effort.
			slog.Error("Gallery failed to archive submission", "error", err, "path", finalPath)
		}
	}
	return finalPath, nil
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
}

var idSuffix = regexp.MustCompile(`^(B|P|X)_(\d+)`)

// sourceLabels maps filename prefixes to the human-readable source names
// used in recommendation messages.
var sourceLabels = map[string]string{
	"B":  "Bilibili post",
	"P":  "Pixiv",
	"X":  "X post",
	"BV": "Bilibili video",
}

// Recommend picks a random artist directory and a random image inside it,
// and builds the reply: a mention of the asker, the artist and source info,
// and the image itself.
func (g *Gallery) Recommend(ctx context.Context, askerID int64) (models.Message, error) {
	artists, err := g.artistDirs()
	if err != nil {
		return nil, err
	}
	if len(artists) == 0 {
		return nil, fmt.Errorf("gallery has no artist directories: %w", models.ErrNoSuitableContent)
	}

	artist := artists[g.intn(len(artists))]
	images, err := g.imageFiles(artist)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("artist %q has no images: %w", artist, models.ErrNoSuitableContent)
	}
	image := images[g.intn(len(images))]

	source, id := describeImage(image)
	abs, err := filepath.Abs(filepath.Join(g.root, artist, image))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image path: %w", err)
	}

	text := fmt.Sprintf("\nRecommended for you:\nArtist: %s\nSource: %s ID: %s\n", artist, source, id)
	msg := models.Message{
		{Type: models.SegmentMention, UserID: askerID},
		{Type: models.SegmentText, Text: text},
		{Type: models.SegmentImage, File: "file://" + abs},
	}
	return msg, nil
}

// describeImage derives the source label and artwork id from a stored
// filename of the form <prefix>_<id><ext>.
func describeImage(name string) (string, string) {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "BV_") {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		parts := strings.SplitN(stem, "_", 2)
		if len(parts) == 2 {
			return sourceLabels["BV"], parts[1]
		}
		return sourceLabels["BV"], "unknown"
	}
	if m := idSuffix.FindStringSubmatch(upper); m != nil {
		return sourceLabels[m[1]], m[2]
	}
	return "unknown source", "unknown"
}

func (g *Gallery) artistDirs() ([]string, error) {
	entries, err := os.ReadDir(g.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

func (g *Gallery) imageFiles(artist string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(g.root, artist))
	if err != nil {
		return nil, fmt.Errorf("failed to read artist directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func (g *Gallery) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}
