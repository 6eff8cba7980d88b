package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/session"
)

type fakeQuizSource struct {
	lyric QuizQuestion
	audio QuizQuestion
	err   error
}

func (f *fakeQuizSource) LyricQuestion(ctx context.Context) (QuizQuestion, error) {
	return f.lyric, f.err
}

func (f *fakeQuizSource) AudioQuestion(ctx context.Context) (QuizQuestion, error) {
	return f.audio, f.err
}

type recordedRound struct {
	GroupID   int64
	Song      string
	StarterID int64
	WinnerID  int64
	TimedOut  bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	rounds []recordedRound
}

func (f *fakeRecorder) RecordQuizRound(ctx context.Context, groupID int64, song string, starterID, winnerID int64, timedOut bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds = append(f.rounds, recordedRound{groupID, song, starterID, winnerID, timedOut})
	return nil
}

func (f *fakeRecorder) all() []recordedRound {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRound, len(f.rounds))
	copy(out, f.rounds)
	return out
}

func newQuizEngine(t *testing.T, src QuizSource, rec QuizRecorder) (*Engine, *Definition, *session.Store, *fakeNotifier) {
	t.Helper()
	store := session.NewStore()
	notifier := &fakeNotifier{}
	eng := NewEngine(store, notifier)
	def := NewQuizDefinition(src, rec)
	if err := eng.Register(def); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return eng, def, store, notifier
}

func testQuestion() QuizQuestion {
	return QuizQuestion{
		Song:          "Stella",
		CorrectLetter: "C",
		Body:          "Which song is this lyric from?\nA. One\nB. Two\nC. Stella\nD. Four",
	}
}

func TestLyricQuizCorrectAnswerWins(t *testing.T) {
	src := &fakeQuizSource{lyric: testQuestion()}
	rec := &fakeRecorder{}
	eng, def, store, notifier := newQuizEngine(t, src, rec)
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))
	if !notifier.containsText("Which song is this lyric from") {
		t.Fatal("question body was not posted")
	}

	// An answer from a non-starter actor is accepted.
	eng.HandleActive(ctx, def, groupEvent(10, 200, "c"))
	if store.Len() != 0 {
		t.Fatal("session still live after correct answer")
	}
	if !notifier.containsText("The answer is Stella") {
		t.Error("missing winner announcement")
	}

	waitFor(t, time.Second, func() bool { return len(rec.all()) == 1 })
	got := rec.all()[0]
	want := recordedRound{GroupID: 10, Song: "Stella", StarterID: 100, WinnerID: 200, TimedOut: false}
	if got != want {
		t.Errorf("recorded round = %+v, want %+v", got, want)
	}
}

func TestQuizAcceptsSongTitleAsAnswer(t *testing.T) {
	src := &fakeQuizSource{lyric: testQuestion()}
	eng, def, store, _ := newQuizEngine(t, src, &fakeRecorder{})
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))
	eng.HandleActive(ctx, def, groupEvent(10, 200, "stella"))
	if store.Len() != 0 {
		t.Error("full song title was not accepted as an answer")
	}
}

func TestQuizWrongLetterLeavesQuestionOpen(t *testing.T) {
	src := &fakeQuizSource{lyric: testQuestion()}
	eng, def, store, notifier := newQuizEngine(t, src, &fakeRecorder{})
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))
	snap, _ := store.Get(def.KeyFor(groupEvent(10, 0, "")))

	eng.HandleActive(ctx, def, groupEvent(10, 200, "b"))
	if !notifier.containsText("Wrong, think again") {
		t.Error("missing wrong-answer nudge")
	}
	after, ok := store.Get(snap.Key)
	if !ok {
		t.Fatal("wrong answer removed the session")
	}
	if after.Version != snap.Version {
		t.Error("wrong answer bumped the session version")
	}

	// Unrelated chatter is dropped without a reply.
	before := len(notifier.messages())
	eng.HandleActive(ctx, def, groupEvent(10, 300, "what's for dinner"))
	if len(notifier.messages()) != before {
		t.Error("unrelated text drew a reply")
	}
}

func TestQuizConcurrentCorrectAnswersSingleWinner(t *testing.T) {
	src := &fakeQuizSource{lyric: testQuestion()}
	rec := &fakeRecorder{}
	eng, def, store, notifier := newQuizEngine(t, src, rec)
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))

	const racers = 16
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			eng.HandleActive(ctx, def, groupEvent(10, actor, "C"))
		}(int64(200 + i))
	}
	wg.Wait()

	if store.Len() != 0 {
		t.Fatal("session survived the answer race")
	}

	wins := 0
	for _, m := range notifier.messages() {
		if strings.Contains(m.Msg.PlainText(), "The answer is Stella") {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("winner announcements = %d, want exactly 1", wins)
	}

	waitFor(t, time.Second, func() bool { return len(rec.all()) == 1 })
}

func TestQuizBusyAcrossVariants(t *testing.T) {
	src := &fakeQuizSource{lyric: testQuestion(), audio: QuizQuestion{Song: "Stella", CorrectLetter: "A", Body: "options", ClipFile: "file:///clips/stella_p1.slk"}}
	eng, def, store, notifier := newQuizEngine(t, src, &fakeRecorder{})
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))
	eng.StartFlow(ctx, def, groupEvent(10, 200, "audio quiz"))

	if store.Len() != 1 {
		t.Error("second variant opened a second session in the same group")
	}
	if !notifier.containsText("previous question isn't finished") {
		t.Error("missing busy notice")
	}
}

func TestAudioQuizPostsClipThenOptions(t *testing.T) {
	clip := "file:///clips/stella_p1.slk"
	src := &fakeQuizSource{audio: QuizQuestion{Song: "Stella", CorrectLetter: "B", Body: "A. x\nB. Stella", ClipFile: clip}}
	eng, def, store, notifier := newQuizEngine(t, src, &fakeRecorder{})
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "audio quiz"))

	msgs := notifier.messages()
	if len(msgs) == 0 || msgs[0].Msg[0].Type != models.SegmentRecord || msgs[0].Msg[0].File != clip {
		t.Fatalf("first message is not the audio clip: %+v", msgs)
	}

	// Answers before the options land are dropped.
	key := def.KeyFor(groupEvent(10, 0, ""))
	if snap, ok := store.Get(key); ok && snap.State == statePostingClip {
		eng.HandleActive(ctx, def, groupEvent(10, 200, "B"))
		if _, still := store.Get(key); !still {
			t.Fatal("answer during clip posting ended the session")
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		snap, ok := store.Get(key)
		return ok && snap.State == stateAwaitAnswer
	})
	waitFor(t, time.Second, func() bool { return notifier.containsText("B. Stella") })

	eng.HandleActive(ctx, def, groupEvent(10, 200, "B"))
	if store.Len() != 0 {
		t.Error("correct answer after options did not complete the session")
	}
}

func TestQuizGenerationFailureReleasesKey(t *testing.T) {
	src := &fakeQuizSource{err: fmt.Errorf("generate question: %w", models.ErrNoSuitableContent)}
	eng, def, store, notifier := newQuizEngine(t, src, &fakeRecorder{})
	ctx := context.Background()

	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))
	if store.Len() != 0 {
		t.Fatal("failed generation left the group key locked")
	}
	if !notifier.containsText("question bank seems to be having trouble") {
		t.Error("missing failure notice")
	}

	// The next trigger must not see a busy notice.
	src.err = nil
	src.lyric = testQuestion()
	eng.StartFlow(ctx, def, groupEvent(10, 100, "lyric quiz"))
	if store.Len() != 1 {
		t.Error("group could not start a quiz after a failed generation")
	}
}

func TestQuizExpiryRevealsAnswerAndRecordsTimeout(t *testing.T) {
	store := session.NewStore()
	notifier := &fakeNotifier{}
	eng := NewEngine(store, notifier)
	src := &fakeQuizSource{lyric: testQuestion()}
	rec := &fakeRecorder{}
	def := NewQuizDefinition(src, rec)
	// Shrink the answer window for the test.
	sd := def.States[stateAwaitAnswer]
	sd.Timeout = 30 * time.Millisecond
	def.States[stateAwaitAnswer] = sd
	if err := eng.Register(def); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	eng.StartFlow(context.Background(), def, groupEvent(10, 100, "lyric quiz"))

	waitFor(t, time.Second, func() bool { return store.Len() == 0 })
	waitFor(t, time.Second, func() bool { return notifier.containsText("Time's up! The correct answer is C. Stella!") })

	rounds := rec.all()
	if len(rounds) != 1 || !rounds[0].TimedOut || rounds[0].WinnerID != 0 {
		t.Errorf("timed-out round recorded as %+v", rounds)
	}
}
