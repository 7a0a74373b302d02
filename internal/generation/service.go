package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/Manny1440/DreamScapers/internal/imagedata"
	"github.com/Manny1440/DreamScapers/internal/metrics"
	"github.com/Manny1440/DreamScapers/internal/quota"
)

// DefaultTimeout bounds a single upstream model call.
const DefaultTimeout = 60 * time.Second

// Quota is the slice of quota.Service the gateway needs.
type Quota interface {
	Reserve(ctx context.Context, identity string, now time.Time) (quota.Usage, error)
	Release(ctx context.Context, usage quota.Usage) (quota.Usage, error)
}

// Options tunes the gateway.
type Options struct {
	Timeout         time.Duration
	RefundOnFailure bool
	Now             func() time.Time
}

// Service is the generation gateway: validate, meter, invoke, extract.
type Service struct {
	model    Model
	quota    Quota
	recorder Recorder
	validate *validator.Validate
	opts     Options
}

// NewService creates a gateway. A nil model means no API credential is
// configured; every valid request then fails with KindMissingCredential.
func NewService(model Model, q Quota, recorder Recorder, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		model:    model,
		quota:    q,
		recorder: recorder,
		validate: validator.New(),
		opts:     opts,
	}
}

// Generate runs one request through the gateway. Every failure is an *Error.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	started := s.opts.Now()
	outcome := Outcome{
		RequestID: req.RequestID,
		Identity:  quota.NormalizeIdentity(req.Identity),
		At:        started.UTC(),
	}
	if s.model != nil {
		outcome.Model = s.model.Name()
	}

	res, err := s.generate(ctx, req, started, &outcome)

	if err != nil {
		outcome.Kind = KindOf(err)
	}
	outcome.Duration = time.Since(started)
	metrics.GenerationsTotal.WithLabelValues(lo.Ternary(outcome.Succeeded(), "ok", string(outcome.Kind))).Inc()
	if s.recorder != nil && outcome.Identity != "" {
		s.recorder.Record(context.WithoutCancel(ctx), outcome)
	}

	return res, err
}

func (s *Service) generate(ctx context.Context, req Request, now time.Time, outcome *Outcome) (*Result, error) {
	req = normalize(req)
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(validationMessage(err))
	}
	img, err := imagedata.Decode(req.Image)
	if err != nil {
		return nil, invalid("imageBase64 must be a base64 data URL")
	}

	if s.model == nil {
		return nil, &Error{Kind: KindMissingCredential, Message: "server is missing its image model API key"}
	}

	// Nothing is charged for a caller that is already gone.
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	usage, err := s.quota.Reserve(ctx, req.Identity, now)
	outcome.Period, outcome.Used, outcome.Limit = usage.Period, usage.Used, usage.Limit
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			metrics.QuotaRejectionsTotal.Inc()
			return nil, &Error{
				Kind:     KindQuotaExceeded,
				Message:  fmt.Sprintf("Weekly limit reached (%d/%d). Come back next week for more designs.", exceeded.Usage.Used, exceeded.Usage.Limit),
				Limit:    exceeded.Usage.Limit,
				Used:     exceeded.Usage.Used,
				ResetsAt: exceeded.Usage.ResetsAt,
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceled(ctxErr)
		}
		slog.Error("generation: quota store failure", "request_id", req.RequestID, "error", err)
		return nil, &Error{Kind: KindInternal, Message: "usage tracking is temporarily unavailable", Err: err}
	}

	resp, err := s.invoke(ctx, Instruction{Text: BuildInstruction(req.Prompt, req.StyleModifier), Image: img})
	if err != nil {
		usage = s.refund(ctx, req.RequestID, usage)
		outcome.Used = usage.Used
		return nil, s.upstreamError(req.RequestID, err, usage)
	}

	out, ok := FirstImage(resp)
	if !ok {
		usage = s.refund(ctx, req.RequestID, usage)
		outcome.Used = usage.Used
		slog.Warn("generation: model returned no image", "request_id", req.RequestID, "candidates", len(resp.Candidates))
		return nil, &Error{
			Kind:     KindNoImageProduced,
			Message:  "The model did not return an image. Try rephrasing your description.",
			Limit:    usage.Limit,
			Used:     usage.Used,
			ResetsAt: usage.ResetsAt,
		}
	}

	return &Result{
		Image:    imagedata.Encode(out),
		MIMEType: out.MIMEType,
		Used:     usage.Used,
		Limit:    usage.Limit,
		Period:   usage.Period,
		ResetsAt: usage.ResetsAt,
	}, nil
}

// invoke calls the model detached from caller cancellation so an abandoned
// request still completes the call it was charged for.
func (s *Service) invoke(ctx context.Context, in Instruction) (*Response, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.model.Generate(callCtx, in)
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err == nil && resp == nil {
		err = errors.New("empty response from image model")
	}
	return resp, err
}

func (s *Service) upstreamError(requestID string, err error, usage quota.Usage) *Error {
	if errors.Is(err, ErrMissingCredential) {
		return &Error{Kind: KindMissingCredential, Message: "server is missing its image model API key", Err: err}
	}

	slog.Error("generation: image model call failed", "request_id", requestID, "error", err)
	e := &Error{
		Kind:     KindUpstreamError,
		Message:  "The image model is unavailable right now. Please try again shortly.",
		Limit:    usage.Limit,
		Used:     usage.Used,
		ResetsAt: usage.ResetsAt,
		Err:      err,
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Timeout = true
		e.Message = "The image model took too long to respond. Please try again."
	}
	return e
}

func (s *Service) refund(ctx context.Context, requestID string, usage quota.Usage) quota.Usage {
	if !s.opts.RefundOnFailure {
		return usage
	}
	released, err := s.quota.Release(context.WithoutCancel(ctx), usage)
	if err != nil {
		slog.Warn("generation: quota refund failed", "request_id", requestID, "error", err)
		return usage
	}
	return released
}

func normalize(req Request) Request {
	req.Identity = quota.NormalizeIdentity(req.Identity)
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.StyleModifier = strings.TrimSpace(req.StyleModifier)
	req.Image = strings.TrimSpace(req.Image)
	return req
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		if fe.Tag() == "required" {
			return jsonName(fe.Field()) + " is required"
		}
		return jsonName(fe.Field()) + " is too long"
	})
	return strings.Join(fields, "; ")
}

func jsonName(field string) string {
	switch field {
	case "Identity":
		return "email"
	case "Image":
		return "imageBase64"
	case "StyleModifier":
		return "styleModifier"
	default:
		return strings.ToLower(field)
	}
}
