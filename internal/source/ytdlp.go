// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/platform/httpx"
	"github.com/ManuGH/tubemux/internal/procgroup"
)

// YTDLPConfig configures the yt-dlp backed extractor.
type YTDLPConfig struct {
	Bin               string
	CookiesFile       string
	RequestsPerSecond float64
	Burst             int
	ProbeTimeout      time.Duration
	// Client opens format URLs. Defaults to httpx.NewStreamClient().
	Client *http.Client
}

// YTDLP resolves metadata by running `yt-dlp -J` and streams formats over HTTP.
type YTDLP struct {
	cfg     YTDLPConfig
	limiter *rate.Limiter
	client  *http.Client
}

// NewYTDLP builds the extractor. Probe calls are paced by a token bucket.
func NewYTDLP(cfg YTDLPConfig) *YTDLP {
	if cfg.Bin == "" {
		cfg.Bin = "yt-dlp"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = time.Minute
	}
	client := cfg.Client
	if client == nil {
		client = httpx.NewStreamClient()
	}
	return &YTDLP{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		client:  client,
	}
}

type ytdlpFormat struct {
	FormatID    string            `json:"format_id"`
	Ext         string            `json:"ext"`
	VCodec      string            `json:"vcodec"`
	ACodec      string            `json:"acodec"`
	Height      int               `json:"height"`
	FormatNote  string            `json:"format_note"`
	ABR         float64           `json:"abr"`
	TBR         float64           `json:"tbr"`
	URL         string            `json:"url"`
	Protocol    string            `json:"protocol"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

type ytdlpInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	Thumbnails  []Thumbnail   `json:"thumbnails"`
	Formats     []ytdlpFormat `json:"formats"`
}

// notFoundMarkers are yt-dlp error fragments meaning the identifier does not resolve.
var notFoundMarkers = []string{
	"video unavailable",
	"unsupported url",
	"is not a valid url",
	"private video",
	"has been removed",
	"incomplete youtube id",
	"does not exist",
	"http error 404",
}

// Info runs yt-dlp and maps its JSON onto Info.
func (y *YTDLP) Info(ctx context.Context, id string) (*Info, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, y.cfg.ProbeTimeout)
	defer cancel()

	args := []string{"-J", "--no-playlist", "--no-warnings"}
	if y.cfg.CookiesFile != "" {
		args = append(args, "--cookies", y.cfg.CookiesFile)
	}
	args = append(args, "--", id)

	// #nosec G204 -- binary path comes from operator config; id is passed after "--"
	cmd := exec.CommandContext(ctx, y.cfg.Bin, args...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Kill(cmd, syscall.SIGKILL) }
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp probe: %w", ctx.Err())
		}
		msg := lastLine(stderr.String())
		lower := strings.ToLower(stderr.String())
		for _, m := range notFoundMarkers {
			if strings.Contains(lower, m) {
				return nil, fmt.Errorf("%w: %s", model.ErrNotFound, msg)
			}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("yt-dlp exited with %d: %s", exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	var raw ytdlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	info := convertInfo(raw)

	log.FromContext(ctx).Debug().
		Str(log.FieldSource, id).
		Int("formats", len(info.Formats)).
		Msg("yt-dlp probe completed")
	return info, nil
}

func convertInfo(raw ytdlpInfo) *Info {
	info := &Info{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Thumbnails:  raw.Thumbnails,
	}
	if len(info.Thumbnails) == 0 && raw.Thumbnail != "" {
		info.Thumbnails = []Thumbnail{{URL: raw.Thumbnail}}
	}
	for _, f := range raw.Formats {
		// Manifest protocols (HLS/DASH) cannot be piped as a single body.
		if f.URL == "" || (f.Protocol != "" && f.Protocol != "https" && f.Protocol != "http") {
			continue
		}
		bitrate := f.ABR
		if bitrate == 0 {
			bitrate = f.TBR
		}
		info.Formats = append(info.Formats, Format{
			ID:         f.FormatID,
			Container:  f.Ext,
			VideoCodec: f.VCodec,
			AudioCodec: f.ACodec,
			Height:     f.Height,
			Note:       f.FormatNote,
			Bitrate:    bitrate,
			URL:        f.URL,
			Headers:    f.HTTPHeaders,
		})
	}
	return info
}

// Open issues a GET for the format URL with the headers yt-dlp reported.
func (y *YTDLP) Open(ctx context.Context, f Format) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch format %s: %w", f.ID, err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusNotFound, http.StatusGone:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch format %s: %w (status %d)", f.ID, model.ErrNotFound, resp.StatusCode)
	default:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch format %s: unexpected status %d", f.ID, resp.StatusCode)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
