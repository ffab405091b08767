// Package transcripts fetches caption tracks for video documents.
package transcripts

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
)

const timedTextURL = "https://www.youtube.com/api/timedtext"

// YouTubeTranscripts pulls the public caption track via the timedtext
// endpoint in json3 format.
type YouTubeTranscripts struct {
	http *resty.Client
	lang string
}

func NewYouTubeTranscripts() *YouTubeTranscripts {
	return &YouTubeTranscripts{
		http: resty.New(),
		lang: "en",
	}
}

var _ core.TranscriptProvider = (*YouTubeTranscripts)(nil)

type timedTextResponse struct {
	Events []struct {
		TStartMs int64 `json:"tStartMs"`
		Segs     []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func (y *YouTubeTranscripts) ExtractCaptions(ctx context.Context, videoURL string) ([]core.CaptionSegment, error) {
	videoID, err := parseVideoID(videoURL)
	if err != nil {
		return nil, aierr.Extraction("bad video url %q: %v", videoURL, err)
	}

	var body timedTextResponse
	resp, err := y.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"v":    videoID,
			"lang": y.lang,
			"fmt":  "json3",
		}).
		SetResult(&body).
		Get(timedTextURL)
	if err != nil {
		return nil, aierr.Extraction("fetch captions: %v", err)
	}
	if resp.IsError() {
		return nil, aierr.Extraction("fetch captions: status %d", resp.StatusCode())
	}

	var out []core.CaptionSegment
	for _, ev := range body.Events {
		var b strings.Builder
		for _, seg := range ev.Segs {
			b.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		out = append(out, core.CaptionSegment{
			StartSec: float64(ev.TStartMs) / 1000.0,
			Text:     text,
		})
	}
	if len(out) == 0 {
		return nil, aierr.Extraction("no caption track for video %s", videoID)
	}
	return out, nil
}

// parseVideoID accepts watch URLs, youtu.be short links and bare IDs.
func parseVideoID(raw string) (string, error) {
	if !strings.Contains(raw, "/") && !strings.Contains(raw, ".") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if strings.Contains(u.Host, "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return "", fmt.Errorf("no video id in path")
		}
		return id, nil
	}
	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}
	// Embed style: /embed/<id> or /shorts/<id>.
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 2 && (parts[0] == "embed" || parts[0] == "shorts") {
		return parts[1], nil
	}
	return "", fmt.Errorf("no video id in url")
}
