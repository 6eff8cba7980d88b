package flow

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

// FlowSubmission is the fan-art submission wizard.
const FlowSubmission models.FlowType = "submission"

// Submission flow states.
const (
	stateAwaitImage  models.StateType = "awaiting_image"
	stateAwaitArtist models.StateType = "awaiting_artist"
	stateAwaitSource models.StateType = "awaiting_source"
	stateAwaitID     models.StateType = "awaiting_id"
)

// Payload keys collected by the submission flow.
const (
	keyImageURL     models.DataKey = "image_url"
	keyImageExt     models.DataKey = "image_ext"
	keyArtist       models.DataKey = "artist"
	keySourcePrefix models.DataKey = "source_prefix"
	keyArtworkID    models.DataKey = "artwork_id"
)

// Submission step timeouts. All expiries are silent: the flow was designed
// to avoid "still waiting" chatter in the group.
const (
	submissionImageTimeout = 60 * time.Second
	submissionStepTimeout  = 30 * time.Second
)

// sourceChoices maps the numeric source reply to the filename prefix used
// in the gallery.
var sourceChoices = map[string]string{
	"1": "X",
	"2": "B",
	"3": "P",
	"4": "BV",
}

// invalidArtistChars are characters an artist directory name may not
// contain.
var invalidArtistChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// SubmissionResult is the collected payload handed to the sink.
type SubmissionResult struct {
	Artist       string
	SourcePrefix string
	ArtworkID    string
	ImageURL     string
	ImageExt     string
	SubmittedBy  int64
	GroupID      int64
}

// SubmissionSink persists a completed submission (fetch the image, store it
// in the gallery, record it) and returns the stored file path.
type SubmissionSink interface {
	SaveSubmission(ctx context.Context, sub SubmissionResult) (string, error)
}

// NewSubmissionDefinition builds the fan-art submission flow. One submission
// per actor at a time, regardless of group.
func NewSubmissionDefinition(sink SubmissionSink, notifier Notifier) *Definition {
	def := &Definition{
		Type:          FlowSubmission,
		Triggers:      []string{"submit art"},
		CancelPhrases: []string{"cancel submission", "cancel"},
		GroupOnly:     true,
		BusyNotice:    "You already have a submission in progress. Finish it or send \"cancel submission\" to quit.",
		CancelNotice:  "Submission cancelled.",
		FailureNotice: "Sorry, saving your submission failed. Please try again later.",
		KeyFor: func(ev models.Event) models.SessionKey {
			return models.SessionKey(fmt.Sprintf("submission:%d", ev.ActorID))
		},
		Start: func(ctx context.Context, ev models.Event) Outcome {
			prompt := fmt.Sprintf(
				"Please send the image you want to submit within %d seconds (AI-generated images will be rejected).\nYou can send \"cancel submission\" at any time to quit.",
				int(submissionImageTimeout.Seconds()))
			return Advance(stateAwaitImage, nil, models.TextMessage(prompt))
		},
	}

	def.States = map[models.StateType]StateDef{
		stateAwaitImage: {
			Timeout: submissionImageTimeout,
			Handle:  handleSubmissionImage,
		},
		stateAwaitArtist: {
			Timeout: submissionStepTimeout,
			Handle:  handleSubmissionArtist,
		},
		stateAwaitSource: {
			Timeout: submissionStepTimeout,
			Handle:  handleSubmissionSource,
		},
		stateAwaitID: {
			Timeout: submissionStepTimeout,
			Handle:  handleSubmissionID,
		},
	}

	def.OnComplete = func(ctx context.Context, s models.SessionSnapshot) error {
		result := SubmissionResult{
			Artist:       string(s.Data[keyArtist]),
			SourcePrefix: string(s.Data[keySourcePrefix]),
			ArtworkID:    string(s.Data[keyArtworkID]),
			ImageURL:     string(s.Data[keyImageURL]),
			ImageExt:     string(s.Data[keyImageExt]),
			SubmittedBy:  s.StarterID,
			GroupID:      s.Dest.ID,
		}
		savedPath, err := sink.SaveSubmission(ctx, result)
		if err != nil {
			return fmt.Errorf("failed to save submission: %w", err)
		}
		slog.Info("Submission saved", "artist", result.Artist, "path", savedPath, "submittedBy", result.SubmittedBy)
		return notifier.Send(ctx, s.Dest, models.TextMessage("Submission complete! Thank you for contributing to the gallery!"))
	}

	return def
}

func handleSubmissionImage(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	url, ok := in.Event.FirstImageURL()
	if !ok {
		return Cancel("not an image", models.TextMessage("That was not an image; the submission has been cancelled."))
	}

	ext := imageExtension(url)
	return Advance(stateAwaitArtist,
		models.Payload{keyImageURL: url, keyImageExt: ext},
		models.TextMessage("Image received!\nWhat is the artist's name?"))
}

func handleSubmissionArtist(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	name := in.Text
	if name == "" || len(name) > 50 || invalidArtistChars.MatchString(name) || strings.HasPrefix(name, "[") {
		return Cancel("invalid artist name", models.TextMessage("Invalid artist name; the submission has been cancelled."))
	}

	prompt := "Where does the image come from? Reply with the number:\n" +
		"  1. X post\n" +
		"  2. Bilibili post\n" +
		"  3. Pixiv\n" +
		"  4. Bilibili video"
	return Advance(stateAwaitSource,
		models.Payload{keyArtist: name},
		models.TextMessage(prompt))
}

func handleSubmissionSource(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	prefix, ok := sourceChoices[in.Text]
	if !ok {
		return Cancel("invalid source choice", models.TextMessage("Invalid source choice; the submission has been cancelled."))
	}

	var prompt string
	if prefix == "BV" {
		prompt = "Source confirmed!\nFinally, send the BV or AV id of the video this image comes from."
	} else {
		prompt = "Source confirmed!\nFinally, send the numeric post or artwork id for this image."
	}
	return Advance(stateAwaitID,
		models.Payload{keySourcePrefix: prefix},
		models.TextMessage(prompt))
}

func handleSubmissionID(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	if !validArtworkID(string(s.Data[keySourcePrefix]), in.Text) {
		return Cancel("invalid artwork id", models.TextMessage("Invalid id format; the submission has been cancelled."))
	}
	return Complete(models.Payload{keyArtworkID: in.Text}, nil)
}

// validArtworkID checks the artwork id against the rules of its source:
// video sources accept BV ids or numeric AV ids, everything else is a plain
// numeric id.
func validArtworkID(prefix, id string) bool {
	if prefix == "BV" {
		upper := strings.ToUpper(id)
		if strings.HasPrefix(upper, "BV") && isAlphanumeric(upper) {
			return true
		}
		if strings.HasPrefix(upper, "AV") && len(upper) > 2 && isDigits(upper[2:]) {
			return true
		}
		return false
	}
	return id != "" && isDigits(id)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// imageExtension extracts a sane file extension from the image URL,
// defaulting to .jpg when the URL carries none.
func imageExtension(url string) string {
	urlPath := url
	if i := strings.IndexByte(urlPath, '?'); i >= 0 {
		urlPath = urlPath[:i]
	}
	ext := path.Ext(urlPath)
	if ext == "" || len(ext) > 6 || !isAlphanumeric(strings.TrimPrefix(ext, ".")) {
		return ".jpg"
	}
	return ext
}
