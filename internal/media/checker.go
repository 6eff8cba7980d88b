// Package media implements the download backend behind the media wizard:
// link validation against the downloader tool and a store-backed job
// pipeline that runs downloads off the dispatch path.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"

	"github.com/kanolab/fawnbot/internal/flow"
)

// hiResFormatID is the lossless audio format id the downloader reports for
// Hi-Res capable Bilibili videos.
const hiResFormatID = "30251"

// bilibiliHosts are the hostnames treated as Bilibili links.
var bilibiliHosts = []string{"bilibili.com", "b23.tv"}

// Prober asks the downloader tool what the best audio format of a link is.
// An error means the link carries no downloadable media.
type Prober interface {
	BestAudioFormatID(ctx context.Context, link string) (string, error)
}

// ExecProber probes links by invoking yt-dlp.
type ExecProber struct {
	// ProxyURL is passed to yt-dlp when set.
	ProxyURL string
}

func (p *ExecProber) BestAudioFormatID(ctx context.Context, link string) (string, error) {
	args := []string{"--no-check-certificate", "-f", "bestaudio", "--print", "format_id", "--no-download", link}
	if p.ProxyURL != "" {
		args = append([]string{"--proxy", p.ProxyURL}, args...)
	}
	out, err := exec.CommandContext(ctx, "yt-dlp", args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to probe link: %w", err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("probe returned no format id")
	}
	return id, nil
}

// Checker validates links for the download wizard.
type Checker struct {
	prober Prober
}

// NewChecker creates a link checker over the given prober.
func NewChecker(prober Prober) *Checker {
	return &Checker{prober: prober}
}

// CheckLink probes the link and reports what the wizard needs: whether it
// is a Bilibili link and whether a Hi-Res audio tier exists.
func (c *Checker) CheckLink(ctx context.Context, link string) (flow.LinkInfo, error) {
	formatID, err := c.prober.BestAudioFormatID(ctx, link)
	if err != nil {
		slog.Info("Checker link rejected", "link", link, "error", err)
		return flow.LinkInfo{}, fmt.Errorf("unsupported link: %w", err)
	}

	info := flow.LinkInfo{
		Bilibili: isBilibiliLink(link),
		HiRes:    formatID == hiResFormatID,
	}
	slog.Debug("Checker link accepted", "link", link, "bilibili", info.Bilibili, "hires", info.HiRes)
	return info, nil
}

// isBilibiliLink reports whether the link's host belongs to Bilibili.
func isBilibiliLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range bilibiliHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
