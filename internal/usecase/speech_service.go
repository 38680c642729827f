package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/metrics"
)

var (
	// ErrSpeechNotConfigured is returned when no speech provider credentials are set.
	ErrSpeechNotConfigured = errors.New("speech provider is not configured")

	// ErrSpeechUnavailable is returned when the speech provider call fails.
	ErrSpeechUnavailable = errors.New("speech provider unavailable")
)

// SpeechContentType is the media type of synthesized audio.
const SpeechContentType = "audio/mpeg"

// SpeechService defines the interface for text-to-speech.
type SpeechService interface {
	// Synthesize returns the spoken audio for text and its content type.
	// Caller is responsible for closing the returned ReadCloser.
	Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error)
}

// SpeechServiceConfig holds configuration for SpeechService.
type SpeechServiceConfig struct {
	VoiceID string
	ModelID string
	// ArchivePrefix is the object key prefix for archived audio.
	ArchivePrefix string
}

// DefaultSpeechServiceConfig returns the default configuration.
func DefaultSpeechServiceConfig() SpeechServiceConfig {
	return SpeechServiceConfig{ArchivePrefix: "speech"}
}

type speechService struct {
	synth   repository.SpeechSynthesizer
	archive repository.ObjectStorage
	cfg     SpeechServiceConfig
}

// NewSpeechService creates a new SpeechService.
// archive may be nil, in which case every request goes to the provider.
func NewSpeechService(synth repository.SpeechSynthesizer, archive repository.ObjectStorage, cfg SpeechServiceConfig) SpeechService {
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "speech"
	}
	return &speechService{
		synth:   synth,
		archive: archive,
		cfg:     cfg,
	}
}

func (s *speechService) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	if s.synth == nil {
		return nil, "", ErrSpeechNotConfigured
	}

	text, err := model.NormalizeText(text)
	if err != nil {
		return nil, "", err
	}

	key := s.archiveKey(text)

	if rc := s.fromArchive(ctx, key); rc != nil {
		return rc, SpeechContentType, nil
	}

	start := time.Now()
	audio, err := s.synth.Synthesize(ctx, repository.SpeechRequest{
		Text:    text,
		VoiceID: s.cfg.VoiceID,
		ModelID: s.cfg.ModelID,
	})
	metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderElevenLabs, metrics.ProviderOpSynthesize, metrics.ProviderStatus(err)).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderElevenLabs, metrics.ProviderOpSynthesize).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("speech synthesis failed", "text_length", len(text), "error", err)
		return nil, "", fmt.Errorf("%w: %w", ErrSpeechUnavailable, err)
	}

	if s.archive == nil {
		return audio, SpeechContentType, nil
	}

	defer audio.Close()
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read audio: %w", ErrSpeechUnavailable, err)
	}

	if err := s.archive.Upload(ctx, key, bytes.NewReader(data), SpeechContentType); err != nil {
		slog.Warn("failed to archive speech", "key", key, "error", err)
	}

	return io.NopCloser(bytes.NewReader(data)), SpeechContentType, nil
}

// fromArchive returns the archived audio for key, or nil when it is absent
// or the archive cannot be read.
func (s *speechService) fromArchive(ctx context.Context, key string) io.ReadCloser {
	if s.archive == nil {
		return nil
	}

	rc, err := s.archive.Download(ctx, key)
	switch {
	case err == nil && rc != nil:
		metrics.SpeechArchiveTotal.WithLabelValues(metrics.SpeechArchiveHit).Inc()
		slog.Debug("speech archive hit", "key", key)
		return rc
	case err == nil || errors.Is(err, repository.ErrObjectNotFound):
		metrics.SpeechArchiveTotal.WithLabelValues(metrics.SpeechArchiveMiss).Inc()
	default:
		metrics.SpeechArchiveTotal.WithLabelValues(metrics.SpeechArchiveError).Inc()
		slog.Warn("speech archive lookup failed", "key", key, "error", err)
	}
	return nil
}

func (s *speechService) archiveKey(text string) string {
	sum := sha256.Sum256([]byte(s.cfg.VoiceID + "|" + s.cfg.ModelID + "|" + text))
	return s.cfg.ArchivePrefix + "/" + hex.EncodeToString(sum[:]) + ".mp3"
}
