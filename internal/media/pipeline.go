package media

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/store"
)

// Downloader performs one download and returns the output file path.
type Downloader interface {
	Download(ctx context.Context, job store.MediaJob) (string, error)
}

// ExecDownloader downloads media by invoking yt-dlp.
type ExecDownloader struct {
	// OutputDir is where downloaded files land.
	OutputDir string
	// ProxyURL is passed to yt-dlp when set.
	ProxyURL string
}

func (d *ExecDownloader) Download(ctx context.Context, job store.MediaJob) (string, error) {
	pattern := filepath.Join(d.OutputDir, job.ID+".%(ext)s")
	args := []string{"--no-check-certificate", "-o", pattern}
	if d.ProxyURL != "" {
		args = append(args, "--proxy", d.ProxyURL)
	}
	if job.Kind == flow.MediaKindAudio {
		args = append(args, "-f", job.FormatID, "-x")
	}
	args = append(args, "--print", "after_move:filepath", job.URL)

	out, err := exec.CommandContext(ctx, "yt-dlp", args...).Output()
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	path := string(out)
	for len(path) > 0 && (path[len(path)-1] == '\n' || path[len(path)-1] == '\r') {
		path = path[:len(path)-1]
	}
	if path == "" {
		return "", fmt.Errorf("downloader reported no output file")
	}
	return path, nil
}

// Pipeline accepts completed wizard requests, archives them as jobs, and
// runs the download in the background, reporting the result back to the
// requesting chat.
type Pipeline struct {
	archive    store.Store
	downloader Downloader
	notifier   flow.Notifier
}

// NewPipeline creates a download pipeline.
func NewPipeline(archive store.Store, downloader Downloader, notifier flow.Notifier) *Pipeline {
	slog.Debug("Creating media Pipeline")
	return &Pipeline{archive: archive, downloader: downloader, notifier: notifier}
}

// EnqueueDownload records the job and starts it in the background. The job
// id is returned immediately; progress is reported to the request's chat.
func (p *Pipeline) EnqueueDownload(ctx context.Context, req flow.DownloadRequest) (string, error) {
	job := store.MediaJob{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Kind:        req.Kind,
		FormatID:    req.FormatID,
		Title:       req.Title,
		Artist:      req.Artist,
		RequestedBy: req.RequestedBy,
		Status:      store.JobStatusPending,
	}
	if err := p.archive.AddMediaJob(job); err != nil {
		return "", fmt.Errorf("failed to record media job: %w", err)
	}
	slog.Info("Pipeline job enqueued", "jobID", job.ID, "kind", job.Kind, "url", job.URL)

	go p.run(job, req.Dest)
	return job.ID, nil
}

// run executes one job to completion. It owns the job's status transitions
// and the user-facing result notification.
func (p *Pipeline) run(job store.MediaJob, dest models.Destination) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Pipeline job panicked", "jobID", job.ID, "panic", r)
		}
	}()
	ctx := context.Background()

	if err := p.archive.UpdateMediaJob(job.ID, store.JobStatusRunning, "", ""); err != nil {
		slog.Error("Pipeline failed to mark job running", "jobID", job.ID, "error", err)
	}

	path, err := p.downloader.Download(ctx, job)
	if err != nil {
		slog.Error("Pipeline job failed", "jobID", job.ID, "error", err)
		if uerr := p.archive.UpdateMediaJob(job.ID, store.JobStatusFailed, err.Error(), ""); uerr != nil {
			slog.Error("Pipeline failed to mark job failed", "jobID", job.ID, "error", uerr)
		}
		p.notify(ctx, dest, "Sorry, the download failed. Please try again later.")
		return
	}

	if err := p.archive.UpdateMediaJob(job.ID, store.JobStatusDone, "", path); err != nil {
		slog.Error("Pipeline failed to mark job done", "jobID", job.ID, "error", err)
	}
	slog.Info("Pipeline job done", "jobID", job.ID, "path", path)

	if job.Kind == flow.MediaKindAudio && job.Title != "" {
		p.notify(ctx, dest, fmt.Sprintf("\"%s - %s\" is ready!", job.Artist, job.Title))
	} else {
		p.notify(ctx, dest, "Your download is ready!")
	}
}

func (p *Pipeline) notify(ctx context.Context, dest models.Destination, text string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Send(ctx, dest, models.TextMessage(text)); err != nil {
		slog.Error("Pipeline failed to send notification", "dest", dest, "error", err)
	}
}
