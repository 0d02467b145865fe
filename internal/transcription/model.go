// Package transcription turns recordings, audio URLs and live call audio into transcripts.
package transcription

import (
	"strings"
	"time"
)

type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Sources recorded in metadata.
const (
	SourceAudioURL  = "audio_url"
	SourceRecording = "recording"
	SourceStream    = "stream"
)

// Transcription is created when a request is accepted. Streaming transcriptions are updated in place
// as chunk results arrive and are terminal once Status leaves in-progress.
type Transcription struct {
	ID         string   `json:"transcriptionId"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
	Duration   float64  `json:"duration"`
	WordCount  int      `json:"wordCount"`
	Status     Status   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

type Metadata struct {
	CallID      string     `json:"callId,omitempty"`
	RecordingID string     `json:"recordingId,omitempty"`
	Source      string     `json:"source"`
	Backend     string     `json:"backend,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Channels    int        `json:"channels,omitempty"`
	SampleRate  int        `json:"sampleRate,omitempty"`
	Chunks      int        `json:"chunks,omitempty"`
}

func (t Transcription) Terminal() bool { return t.Status != StatusInProgress }

func wordCount(s string) int { return len(strings.Fields(s)) }
