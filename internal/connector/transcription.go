package connector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"knowledge-platform/internal/config"
	"knowledge-platform/models"
	"knowledge-platform/utils"
)

const transcriptCacheTTL = 30 * 24 * time.Hour

// TranscriptionProvider turns one media file into text.
type TranscriptionProvider interface {
	Name() string
	Transcribe(ctx context.Context, path string) (string, error)
}

// NewTranscriptionProvider selects the provider from configuration.
func NewTranscriptionProvider(cfg *config.Config) TranscriptionProvider {
	switch cfg.TranscriptionProvider {
	case "local":
		return &whisperProvider{binary: cfg.WhisperBinary}
	case "cloud":
		return &cloudProvider{apiKey: cfg.GeminiAPIKey}
	default:
		return &mockProvider{}
	}
}

// mockProvider produces a deterministic placeholder transcript. Used in
// development and tests where no speech model is available.
type mockProvider struct{}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Transcribe(_ context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transcript of %s (%d bytes).", filepath.Base(path), info.Size()), nil
}

// whisperProvider shells out to a local whisper-compatible binary that
// prints the transcript to stdout.
type whisperProvider struct {
	binary string
}

func (p *whisperProvider) Name() string { return "local" }

func (p *whisperProvider) Transcribe(ctx context.Context, path string) (string, error) {
	if p.binary == "" {
		return "", fmt.Errorf("whisper binary not configured")
	}
	cmd := exec.CommandContext(ctx, p.binary, "--output_format", "txt", "--output_dir", "-", path)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("whisper failed: %w", err)
	}
	return string(out), nil
}

// cloudProvider sends the media blob to Gemini for transcription.
type cloudProvider struct {
	apiKey string
}

func (p *cloudProvider) Name() string { return "cloud" }

func (p *cloudProvider) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel("gemini-1.5-flash")
	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mediaMIMEType(path), Data: data},
		genai.Text("Transcribe this recording verbatim. Output only the transcript text."),
	)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty transcription response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func mediaMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// TranscriptionConnector produces one content unit per media file. Finished
// transcripts are cached in redis keyed by the media content hash, so a
// rerun over unchanged media never re-transcribes.
type TranscriptionConnector struct {
	provider TranscriptionProvider
	rdb      *redis.Client
}

func NewTranscriptionConnector(provider TranscriptionProvider, rdb *redis.Client) *TranscriptionConnector {
	return &TranscriptionConnector{provider: provider, rdb: rdb}
}

func (c *TranscriptionConnector) Type() string { return models.SourceTypeTranscription }

func (c *TranscriptionConnector) Validate(_ context.Context, spec FetchSpec) error {
	if len(spec.Source.Params.MediaPaths) == 0 {
		return fmt.Errorf("transcription source has no media paths")
	}
	return nil
}

func (c *TranscriptionConnector) Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError) {
	items := make(chan Item)
	errs := make(chan ItemError)

	go func() {
		defer close(items)
		defer close(errs)

		for _, mediaPath := range spec.Source.Params.MediaPaths {
			if ctx.Err() != nil {
				return
			}

			text, err := c.transcribe(ctx, mediaPath)
			if err != nil {
				emitErr(ctx, errs, mediaPath, err)
				continue
			}
			if strings.TrimSpace(text) == "" {
				emitErr(ctx, errs, mediaPath, fmt.Errorf("empty transcript"))
				continue
			}

			if !emit(ctx, items, Item{
				ID:        mediaPath,
				Path:      mediaPath,
				Text:      NormalizeText(text),
				PageCount: 1,
				Meta:      map[string]string{"provider": c.provider.Name()},
			}) {
				return
			}
		}
	}()

	return items, errs
}

func (c *TranscriptionConnector) transcribe(ctx context.Context, mediaPath string) (string, error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return "", err
	}

	cacheKey := "transcript:" + c.provider.Name() + ":" + utils.ContentHash(string(data))
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, cacheKey).Result(); err == nil {
			return cached, nil
		}
	}

	text, err := c.provider.Transcribe(ctx, mediaPath)
	if err != nil {
		return "", err
	}

	if c.rdb != nil {
		// best effort; a failed write just means re-transcribing next run
		c.rdb.Set(ctx, cacheKey, text, transcriptCacheTTL)
	}
	return text, nil
}
