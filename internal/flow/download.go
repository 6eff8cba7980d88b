package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

// FlowDownload is the media download configuration wizard.
const FlowDownload models.FlowType = "media_download"

// Download wizard states.
const (
	stateAwaitLink    models.StateType = "awaiting_link"
	stateValidating   models.StateType = "validating_link"
	stateAwaitQuality models.StateType = "awaiting_quality"
	stateAwaitDLName  models.StateType = "awaiting_artist_name"
	stateAwaitTitle   models.StateType = "awaiting_title"
)

// Payload keys for the download wizard.
const (
	keyMediaKind models.DataKey = "kind"
	keyMediaURL  models.DataKey = "url"
	keyFormatID  models.DataKey = "format_id"
	keyHiRes     models.DataKey = "hires"
	keyDLArtist  models.DataKey = "artist"
	keyDLTitle   models.DataKey = "title"
)

// Media kinds.
const (
	MediaKindAudio = "audio"
	MediaKindVideo = "video"
)

// downloadStepTimeout is the per-step response window of the wizard.
const downloadStepTimeout = 60 * time.Second

// qualityChoices maps the numeric quality reply to a gateway format id.
// Choice 4 is the lossless Hi-Res tier, offered only when the link checker
// reports one.
var qualityChoices = map[string]string{
	"1": "20216",
	"2": "30232",
	"3": "30280",
	"4": "bestaudio",
}

// presetArtist is the artist preset applied by the dedicated trigger, which
// skips the artist step of the wizard.
const presetArtist = "Kano"

var urlPattern = regexp.MustCompile(`(https?://)?[^\s/]+\.[^\s/]+(/[^\s]*)?`)

// LinkInfo describes what the checker learned about a link.
type LinkInfo struct {
	Bilibili bool
	HiRes    bool
}

// LinkChecker validates a link against the media backend. An error means
// the link is unsupported and the flow cancels. The real backend probe is
// an external subsystem; the core only consumes this interface.
type LinkChecker interface {
	CheckLink(ctx context.Context, url string) (LinkInfo, error)
}

// DownloadRequest is the collected wizard payload handed to the pipeline.
type DownloadRequest struct {
	URL         string
	Kind        string
	FormatID    string
	Title       string
	Artist      string
	RequestedBy int64
	Dest        models.Destination
}

// MediaPipeline accepts a completed download request for background
// processing and returns a job id.
type MediaPipeline interface {
	EnqueueDownload(ctx context.Context, req DownloadRequest) (string, error)
}

// NewDownloadDefinition builds the download configuration wizard. The key
// is scoped to group+actor (or the actor alone in private chat), so two
// users in one group can run wizards concurrently.
func NewDownloadDefinition(checker LinkChecker, pipeline MediaPipeline) *Definition {
	def := &Definition{
		Type:          FlowDownload,
		Triggers:      []string{"get video", "get audio", "get kano song"},
		BusyNotice:    "Your previous request here isn't finished yet. Respond to it or wait for it to time out.",
		FailureNotice: "The download request could not be started; please try again later.",
		KeyFor: func(ev models.Event) models.SessionKey {
			if ev.Kind == models.MessageKindGroup {
				return models.SessionKey(fmt.Sprintf("media:group:%d:user:%d", ev.GroupID, ev.ActorID))
			}
			return models.SessionKey(fmt.Sprintf("media:private:%d", ev.ActorID))
		},
	}

	def.Start = func(ctx context.Context, ev models.Event) Outcome {
		set := models.Payload{keyMediaKind: MediaKindVideo}
		switch strings.TrimSpace(ev.RawText) {
		case "get audio":
			set[keyMediaKind] = MediaKindAudio
		case "get kano song":
			set[keyMediaKind] = MediaKindAudio
			set[keyDLArtist] = presetArtist
		}
		return Advance(stateAwaitLink, set,
			models.TextMessage("Please send the link within 60 seconds."))
	}

	def.States = map[models.StateType]StateDef{
		stateAwaitLink: {
			Timeout:  downloadStepTimeout,
			Handle:   makeLinkHandler(checker),
			OnExpire: downloadExpiryMessage,
		},
		stateValidating: {
			// No timer while validation is in flight; the async follow-up
			// either advances or cancels the session.
			Handle: func(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
				return Stay(models.TextMessage("Still validating the link you sent, please wait..."))
			},
		},
		stateAwaitQuality: {
			Timeout:  downloadStepTimeout,
			Handle:   handleQualityChoice,
			OnExpire: downloadExpiryMessage,
		},
		stateAwaitDLName: {
			Timeout:  downloadStepTimeout,
			Handle:   handleDownloadArtist,
			OnExpire: downloadExpiryMessage,
		},
		stateAwaitTitle: {
			Timeout:  downloadStepTimeout,
			Handle:   handleDownloadTitle,
			OnExpire: downloadExpiryMessage,
		},
	}

	def.OnComplete = func(ctx context.Context, s models.SessionSnapshot) error {
		req := DownloadRequest{
			URL:         string(s.Data[keyMediaURL]),
			Kind:        string(s.Data[keyMediaKind]),
			FormatID:    string(s.Data[keyFormatID]),
			Title:       string(s.Data[keyDLTitle]),
			Artist:      string(s.Data[keyDLArtist]),
			RequestedBy: s.StarterID,
			Dest:        s.Dest,
		}
		jobID, err := pipeline.EnqueueDownload(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to enqueue download: %w", err)
		}
		_ = jobID
		return nil
	}

	return def
}

// makeLinkHandler extracts a URL from the reply and kicks off asynchronous
// validation, so the dispatch path never blocks on the media backend.
func makeLinkHandler(checker LinkChecker) HandlerFunc {
	return func(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
		match := urlPattern.FindString(in.Text)
		if match == "" {
			return Cancel("not a link", models.TextMessage("That wasn't a link; the request has been cancelled."))
		}

		url := match
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}

		out := Advance(stateValidating, models.Payload{keyMediaURL: url},
			models.TextMessage("Link received, validating..."))
		out.Async = func(ctx context.Context, s models.SessionSnapshot) Outcome {
			return validateLink(ctx, checker, s, url)
		}
		return out
	}
}

// validateLink runs off the dispatch path and produces the transition out
// of the validating state: cancel for unsupported links, immediate
// completion for video, or the next configuration step for audio.
func validateLink(ctx context.Context, checker LinkChecker, s models.SessionSnapshot, url string) Outcome {
	info, err := checker.CheckLink(ctx, url)
	if err != nil {
		return Cancel("unsupported link", models.TextMessage("This link is invalid or unsupported; the request has been cancelled."))
	}

	if string(s.Data[keyMediaKind]) == MediaKindVideo {
		return Complete(nil, models.TextMessage("Link is valid! Downloading and uploading, please wait..."))
	}

	if info.Bilibili {
		prompt := "Reply with a number within 60 seconds to pick the audio quality:\n1. 128kbps\n2. 192kbps\n3. 320kbps"
		hires := "0"
		if info.HiRes {
			prompt += "\n4. Hi-Res (lossless)"
			hires = "1"
		}
		return Advance(stateAwaitQuality, models.Payload{keyHiRes: hires}, models.TextMessage(prompt))
	}

	set := models.Payload{keyFormatID: "bestaudio"}
	if s.Data[keyDLArtist] != "" {
		return Advance(stateAwaitTitle, set,
			models.TextMessage("Link is valid! Please send the song title within 60 seconds."))
	}
	return Advance(stateAwaitDLName, set,
		models.TextMessage("Link is valid! Please send the artist name within 60 seconds."))
}

func handleQualityChoice(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	formatID, ok := qualityChoices[in.Text]
	if !ok || (in.Text == "4" && s.Data[keyHiRes] != "1") {
		return Cancel("invalid quality choice", models.TextMessage("Invalid option; the request has been cancelled."))
	}

	set := models.Payload{keyFormatID: formatID}
	if s.Data[keyDLArtist] != "" {
		return Advance(stateAwaitTitle, set,
			models.TextMessage("Quality selected! Please send the song title within 60 seconds."))
	}
	return Advance(stateAwaitDLName, set,
		models.TextMessage("Quality selected! Please send the artist name within 60 seconds."))
}

func handleDownloadArtist(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	return Advance(stateAwaitTitle, models.Payload{keyDLArtist: in.Text},
		models.TextMessage("Artist received! Please send the song title within 60 seconds."))
}

func handleDownloadTitle(ctx context.Context, s models.SessionSnapshot, in Input) Outcome {
	artist := string(s.Data[keyDLArtist])
	reply := fmt.Sprintf("All set! Processing \"%s - %s\", please wait...", artist, in.Text)
	return Complete(models.Payload{keyDLTitle: in.Text}, models.TextMessage(reply))
}

// downloadExpiryMessage is the shared timeout notice of the wizard steps.
func downloadExpiryMessage(s models.SessionSnapshot) models.Message {
	return models.TextMessage("You didn't respond within 60 seconds; the request has been cancelled automatically.")
}
