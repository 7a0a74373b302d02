package generation

import (
	"context"
	"time"

	"github.com/Manny1440/DreamScapers/internal/imagedata"
)

// Request is one user action: a photo plus what to do with it.
type Request struct {
	Identity      string `json:"email" validate:"required,max=320"`
	Prompt        string `json:"prompt" validate:"required,max=4000"`
	StyleModifier string `json:"styleModifier,omitempty" validate:"max=1000"`
	Image         string `json:"imageBase64" validate:"required"`
	RequestID     string `json:"-"`
}

// Result is the transformed scene plus the quota state after the call.
type Result struct {
	Image    string    `json:"image"`
	MIMEType string    `json:"mimeType"`
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	Period   string    `json:"weekKey"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Instruction is the single-turn request sent to the image model.
type Instruction struct {
	Text  string
	Image imagedata.Image
}

// Response mirrors the model's candidate list.
type Response struct {
	Candidates []Candidate
}

// Candidate is one model output made of parts.
type Candidate struct {
	Parts []Part
}

// Part carries text or inline image bytes.
type Part struct {
	Text  string
	Image *imagedata.Image
}

// Model is the external image-generation service.
type Model interface {
	Generate(ctx context.Context, in Instruction) (*Response, error)
	Name() string
}

// Outcome describes a finished call for event publishing.
type Outcome struct {
	RequestID string
	Identity  string
	Period    string
	Kind      Kind
	Used      int
	Limit     int
	Model     string
	Duration  time.Duration
	At        time.Time
}

// Succeeded reports whether the call produced an image.
func (o Outcome) Succeeded() bool {
	return o.Kind == ""
}

// Recorder receives an Outcome for every call that reached the gateway.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}
