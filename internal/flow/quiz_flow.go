package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

// FlowQuiz covers both song-guessing variants (lyric snippet and audio
// clip). They share one definition so a group can only run one quiz at a
// time, whichever variant was triggered.
const FlowQuiz models.FlowType = "quiz"

// Quiz states. statePostingClip exists because the audio variant posts the
// clip first and the options a moment later; answers arriving in between
// are ignored, as they would race an unposted question.
const (
	statePostingClip models.StateType = "posting_clip"
	stateAwaitAnswer models.StateType = "awaiting_answer"
)

// Payload keys for the quiz flow.
const (
	keySong     models.DataKey = "song"
	keyLetter   models.DataKey = "letter"
	keyWinnerID models.DataKey = "winner_id"
)

// quizAnswerWindow is how long the group has to answer.
const quizAnswerWindow = 2 * time.Minute

// quizClipLead is the pause between posting the audio clip and posting the
// options, giving the clip time to land first.
const quizClipLead = time.Second

// Trigger phrases for the two quiz variants.
const (
	triggerLyricQuiz = "lyric quiz"
	triggerAudioQuiz = "audio quiz"
)

// QuizQuestion is one generated question. ClipFile is empty for the lyric
// variant and a file URI for the audio variant.
type QuizQuestion struct {
	Song          string
	CorrectLetter string
	Body          string
	ClipFile      string
}

// QuizSource generates quiz questions from the content library. A
// models.ErrNoSuitableContent return means the library had no usable
// material within the generation attempt budget.
type QuizSource interface {
	LyricQuestion(ctx context.Context) (QuizQuestion, error)
	AudioQuestion(ctx context.Context) (QuizQuestion, error)
}

// QuizRecorder archives finished rounds.
type QuizRecorder interface {
	RecordQuizRound(ctx context.Context, groupID int64, song string, starterID, winnerID int64, timedOut bool) error
}

// NewQuizDefinition builds the song-guessing flow. Unlike the other flows,
// any actor in the group may answer, not only the starter; the first
// correct answer wins by store-serialized order. This asymmetry with the
// starter-only wizards is deliberate and mirrors the original game.
func NewQuizDefinition(src QuizSource, recorder QuizRecorder) *Definition {
	def := &Definition{
		Type:       FlowQuiz,
		Triggers:   []string{triggerLyricQuiz, triggerAudioQuiz},
		GroupOnly:  true,
		BusyNotice: "The previous question isn't finished yet. Answer it first~",
		KeyFor: func(ev models.Event) models.SessionKey {
			return models.SessionKey(fmt.Sprintf("quiz:group:%d", ev.GroupID))
		},
	}

	def.Start = func(ctx context.Context, ev models.Event) Outcome {
		switch strings.TrimSpace(ev.RawText) {
		case triggerAudioQuiz:
			return startAudioQuiz(ctx, src)
		default:
			return startLyricQuiz(ctx, src)
		}
	}

	def.States = map[models.StateType]StateDef{
		statePostingClip: {
			// No timer and no handler: answers before the options are
			// posted are dropped.
		},
		stateAwaitAnswer: {
			Timeout: quizAnswerWindow,
			Handle:  handleQuizAnswer,
			OnExpire: func(s models.SessionSnapshot) models.Message {
				if recorder != nil {
					if err := recorder.RecordQuizRound(context.Background(), s.Dest.ID, string(s.Data[keySong]), s.StarterID, 0, true); err != nil {
						slog.Error("Quiz round archive failed", "groupID", s.Dest.ID, "error", err)
					}
				}
				return quizExpiryMessage(s)
			},
		},
	}

	def.OnComplete = func(ctx context.Context, s models.SessionSnapshot) error {
		winnerID, err := strconv.ParseInt(string(s.Data[keyWinnerID]), 10, 64)
		if err != nil {
			return fmt.Errorf("quiz completion missing winner id: %w", err)
		}
		if recorder == nil {
			return nil
		}
		if err := recorder.RecordQuizRound(ctx, s.Dest.ID, string(s.Data[keySong]), s.StarterID, winnerID, false); err != nil {
			// Archiving is best effort; the group already saw the result.
			slog.Error("Quiz round archive failed", "groupID", s.Dest.ID, "error", err)
		}
		return nil
	}

	return def
}

func startLyricQuiz(ctx context.Context, src QuizSource) Outcome {
	q, err := src.LyricQuestion(ctx)
	if err != nil {
		slog.Error("Quiz lyric question generation failed", "error", err)
		return Cancel("question generation failed",
			models.TextMessage("The question bank seems to be having trouble; please try again later."))
	}
	return Advance(stateAwaitAnswer,
		models.Payload{keySong: q.Song, keyLetter: q.CorrectLetter},
		models.TextMessage(q.Body))
}

func startAudioQuiz(ctx context.Context, src QuizSource) Outcome {
	q, err := src.AudioQuestion(ctx)
	if err != nil {
		slog.Error("Quiz audio question generation failed", "error", err)
		return Cancel("question generation failed",
			models.TextMessage("The question bank seems to be having trouble; please try again later."))
	}

	clip := models.Message{{Type: models.SegmentRecord, File: q.ClipFile}}
	out := Advance(statePostingClip, nil, clip)
	out.Async = func(ctx context.Context, s models.SessionSnapshot) Outcome {
		time.Sleep(quizClipLead)
		return Advance(stateAwaitAnswer,
			models.Payload{keySong: q.Song, keyLetter: q.CorrectLetter},
			models.TextMessage(q.Body))
	}
	return out
}

// handleQuizAnswer implements the concurrent answer race: the first input
// matching the correctness predicate wins the compare-and-swap removal;
// a second correct answer loses the race and is dropped silently by the
// engine. Wrong option letters get a nudge without touching state.
func handleQuizAnswer(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	answer := strings.ToUpper(in.Text)
	song := string(s.Data[keySong])
	letter := string(s.Data[keyLetter])

	if answer == letter || answer == strings.ToUpper(song) {
		reply := models.MentionText(in.Event.ActorID,
			fmt.Sprintf("Correct! 🎉\nThe answer is %s!", song))
		return Complete(models.Payload{keyWinnerID: strconv.FormatInt(in.Event.ActorID, 10)}, reply)
	}

	switch answer {
	case "A", "B", "C", "D":
		return Stay(models.MentionText(in.Event.ActorID, "Wrong, think again~"))
	}
	return Ignore()
}

// quizExpiryMessage reveals the answer and mentions the starter when the
// answer window closes with no winner.
func quizExpiryMessage(s models.SessionSnapshot) models.Message {
	song := string(s.Data[keySong])
	letter := string(s.Data[keyLetter])
	return models.MentionText(s.StarterID,
		fmt.Sprintf("Time's up! The correct answer is %s. %s!", letter, song))
}
