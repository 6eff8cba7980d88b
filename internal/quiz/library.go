// Package quiz generates song-guessing questions from an on-disk content
// library: .lrc lyric files and .slk audio clips.
package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/models"
)

// maxAttempts bounds question generation. Songs whose lyric files are
// unreadable or too short are skipped and retried with a fresh pick; when the
// budget runs out the library reports models.ErrNoSuitableContent instead
// of looping.
const maxAttempts = 10

// minOptionSongs is the number of answer options per question.
const minOptionSongs = 4

// Snippet length rules per lyric layout.
const (
	minBilingualPairs = 6
	bilingualTake     = 2
	minMonoLines      = 12
	monoTake          = 4
)

var timestampPattern = regexp.MustCompile(`^(\[\d{2}:\d{2}\.\d{2,3}\])`)

// Library serves quiz questions from a lyrics directory and a clips
// directory. It is safe for concurrent use.
type Library struct {
	lyricDir string
	clipDir  string

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Library.
type Option func(*Library)

// WithRandSource fixes the random source, for deterministic tests.
func WithRandSource(src rand.Source) Option {
	return func(l *Library) {
		l.rng = rand.New(src)
	}
}

// NewLibrary creates a question library over the given directories.
func NewLibrary(lyricDir, clipDir string, opts ...Option) *Library {
	l := &Library{
		lyricDir: lyricDir,
		clipDir:  clipDir,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	slog.Debug("Creating quiz Library", "lyricDir", lyricDir, "clipDir", clipDir)
	return l
}

// LyricQuestion picks a song, extracts a lyric snippet, and builds a
// four-option question around it.
func (l *Library) LyricQuestion(ctx context.Context) (flow.QuizQuestion, error) {
	songs, err := l.lyricSongs()
	if err != nil {
		return flow.QuizQuestion{}, err
	}
	if len(songs) < minOptionSongs {
		return flow.QuizQuestion{}, fmt.Errorf("lyric library has %d songs, need at least %d: %w", len(songs), minOptionSongs, models.ErrNoSuitableContent)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return flow.QuizQuestion{}, err
		}
		song := songs[l.intn(len(songs))]
		snippet, err := l.snippetFor(song)
		if err != nil {
			slog.Debug("Library skipped song", "song", song, "attempt", attempt, "error", err)
			continue
		}

		letters, body := l.buildOptions(song, songs)
		full := fmt.Sprintf("🎶 Lyric quiz 🎶\n\n%s\n\nWhich song is this?\n%s\nReply with the option letter (A/B/C/D) or the song title within 2 minutes~", snippet, body)
		return flow.QuizQuestion{Song: song, CorrectLetter: letters, Body: full}, nil
	}
	return flow.QuizQuestion{}, fmt.Errorf("no usable lyric snippet after %d attempts: %w", maxAttempts, models.ErrNoSuitableContent)
}

// AudioQuestion picks a clip from the audio library and builds the
// matching four-option question. The options are posted separately by the
// flow, after the clip has landed.
func (l *Library) AudioQuestion(ctx context.Context) (flow.QuizQuestion, error) {
	if err := ctx.Err(); err != nil {
		return flow.QuizQuestion{}, err
	}
	clips, err := l.clipFiles()
	if err != nil {
		return flow.QuizQuestion{}, err
	}

	songs := clipSongs(clips)
	if len(songs) < minOptionSongs {
		return flow.QuizQuestion{}, fmt.Errorf("audio library has %d songs, need at least %d: %w", len(songs), minOptionSongs, models.ErrNoSuitableContent)
	}

	song := songs[l.intn(len(songs))]
	var parts []string
	for _, f := range clips {
		if strings.HasPrefix(f, song+"_p") {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return flow.QuizQuestion{}, fmt.Errorf("no clip parts for song %q: %w", song, models.ErrNoSuitableContent)
	}
	part := parts[l.intn(len(parts))]

	abs, err := filepath.Abs(filepath.Join(l.clipDir, part))
	if err != nil {
		return flow.QuizQuestion{}, fmt.Errorf("failed to resolve clip path: %w", err)
	}

	letter, body := l.buildOptions(song, songs)
	full := fmt.Sprintf("🎶 Audio quiz 🎶\n\nWhich song is this?\n%s\nReply with the option letter (A/B/C/D) or the song title within 2 minutes~", body)
	return flow.QuizQuestion{
		Song:          song,
		CorrectLetter: letter,
		Body:          full,
		ClipFile:      "file://" + abs,
	}, nil
}

// buildOptions shuffles the correct song with three decoys and renders the
// option block, returning the letter the correct song landed on.
func (l *Library) buildOptions(correct string, songs []string) (string, string) {
	decoys := make([]string, 0, len(songs)-1)
	for _, s := range songs {
		if s != correct {
			decoys = append(decoys, s)
		}
	}
	l.mu.Lock()
	l.rng.Shuffle(len(decoys), func(i, j int) { decoys[i], decoys[j] = decoys[j], decoys[i] })
	options := append([]string{correct}, decoys[:minOptionSongs-1]...)
	l.rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	l.mu.Unlock()

	letters := []string{"A", "B", "C", "D"}
	var b strings.Builder
	var correctLetter string
	for i, option := range options {
		fmt.Fprintf(&b, "%s. %s\n", letters[i], option)
		if option == correct {
			correctLetter = letters[i]
		}
	}
	return correctLetter, b.String()
}

// snippetFor reads a song's lyric file and extracts a random snippet per
// the layout rules.
func (l *Library) snippetFor(song string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(l.lyricDir, song+".lrc"))
	if err != nil {
		return "", fmt.Errorf("failed to read lyric file: %w", err)
	}

	layout, bilingual, mono := parseLRC(strings.Split(string(raw), "\n"))
	switch layout {
	case layoutBilingual:
		if len(bilingual) < minBilingualPairs {
			return "", fmt.Errorf("bilingual lyrics too short (%d pairs): %w", len(bilingual), models.ErrNoSuitableContent)
		}
		start := l.randRange(2, len(bilingual)-2*bilingualTake)
		var lines []string
		for _, pair := range bilingual[start : start+bilingualTake] {
			lines = append(lines, pair[0], pair[1])
		}
		return strings.Join(lines, "\n"), nil
	case layoutMonolingual:
		if len(mono) < minMonoLines {
			return "", fmt.Errorf("lyrics too short (%d lines): %w", len(mono), models.ErrNoSuitableContent)
		}
		start := l.randRange(4, len(mono)-2*monoTake)
		return strings.Join(mono[start:start+monoTake], "\n"), nil
	default:
		return "", fmt.Errorf("no timestamped lyrics found: %w", models.ErrNoSuitableContent)
	}
}

// lyricSongs lists the song names in the lyric directory.
func (l *Library) lyricSongs() ([]string, error) {
	entries, err := os.ReadDir(l.lyricDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read lyric directory: %w", err)
	}
	var songs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lrc") {
			songs = append(songs, strings.TrimSuffix(e.Name(), ".lrc"))
		}
	}
	sort.Strings(songs)
	return songs, nil
}

// clipFiles lists the .slk clip filenames in the clip directory.
func (l *Library) clipFiles() ([]string, error) {
	entries, err := os.ReadDir(l.clipDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip directory: %w", err)
	}
	var clips []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".slk") {
			clips = append(clips, e.Name())
		}
	}
	sort.Strings(clips)
	return clips, nil
}

// clipSongs derives the distinct song names from clip filenames of the
// form "<song>_p<part>.slk".
func clipSongs(clips []string) []string {
	seen := make(map[string]struct{})
	var songs []string
	for _, f := range clips {
		song := strings.SplitN(strings.TrimSuffix(f, ".slk"), "_p", 2)[0]
		if _, dup := seen[song]; !dup {
			seen[song] = struct{}{}
			songs = append(songs, song)
		}
	}
	sort.Strings(songs)
	return songs
}

type lyricLayout int

const (
	layoutUnknown lyricLayout = iota
	layoutBilingual
	layoutMonolingual
)

// parseLRC groups lyric lines by timestamp. A file where most timestamps
// carry two lines is treated as bilingual (original plus translation);
// otherwise the first line per timestamp is used.
func parseLRC(lines []string) (lyricLayout, [][2]string, []string) {
	byStamp := make(map[string][]string)
	for _, line := range lines {
		m := timestampPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(line[len(m[1]):])
		if text != "" {
			byStamp[m[1]] = append(byStamp[m[1]], text)
		}
	}
	if len(byStamp) == 0 {
		return layoutUnknown, nil, nil
	}

	stamps := make([]string, 0, len(byStamp))
	for ts := range byStamp {
		stamps = append(stamps, ts)
	}
	sort.Strings(stamps)

	pairCount, singleCount := 0, 0
	for _, ts := range stamps {
		if len(byStamp[ts]) >= 2 {
			pairCount++
		} else {
			singleCount++
		}
	}

	if pairCount > singleCount {
		var pairs [][2]string
		for _, ts := range stamps {
			if texts := byStamp[ts]; len(texts) >= 2 {
				pairs = append(pairs, [2]string{texts[0], texts[1]})
			}
		}
		return layoutBilingual, pairs, nil
	}

	var mono []string
	for _, ts := range stamps {
		mono = append(mono, byStamp[ts][0])
	}
	return layoutMonolingual, nil, mono
}

// intn returns a random int in [0, n) under the library's lock.
func (l *Library) intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// randRange returns a random int in [lo, hi] inclusive.
func (l *Library) randRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + l.intn(hi-lo+1)
}
