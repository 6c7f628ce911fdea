// Package ingest turns a raw spot submission into a persisted spot.
//
// A submission moves through fixed stages: validate, upload blobs, transcribe,
// resolve the language, translate, attach a pending summary, persist, then run
// post-insert hooks. Provider stages degrade instead of failing the request;
// each degradation is reported as a Warning on the result.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/echospot/echospot/internal/badge"
	"github.com/echospot/echospot/internal/geo"
	"github.com/echospot/echospot/internal/image"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/summary"
	"github.com/echospot/echospot/internal/tracing"
	"github.com/echospot/echospot/internal/transcribe"
	"github.com/echospot/echospot/internal/translate"
	"github.com/echospot/echospot/internal/upload"
	"github.com/echospot/echospot/internal/validate"
)

// sideEffectTimeout bounds the post-insert hooks, which outlive the request.
const sideEffectTimeout = 10 * time.Second

// File is an uploaded media file.
type File struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Submission is a raw spot submission as received from a client.
// Coordinates are kept as received and parsed during validation.
type Submission struct {
	Username     string
	SpotName     string
	Category     string
	Description  string
	Latitude     string
	Longitude    string
	Audio        *File
	Image        *File
	SummaryToken string
}

// Result is a persisted spot together with what degraded on the way.
type Result struct {
	Spot             *spot.Spot `json:"spot"`
	Warnings         []Warning  `json:"warnings"`
	SideEffectErrors []string   `json:"side_effect_errors"`
	BadgeScore       int        `json:"badge_score"`
	PostCount        int        `json:"post_count"`
}

// Config holds pipeline settings.
type Config struct {
	AudioBucket   string
	ImageBucket   string
	MaxAudioBytes int64
	MaxImageBytes int64
	// Targets are the caption languages. Default: every supported language.
	Targets []string
	Policy  translate.Policy
	// TranslationConcurrency bounds parallel translation calls.
	TranslationConcurrency int
	// SanitizeImages strips metadata from photos before upload. Requires Deps.Sanitizer.
	SanitizeImages bool
	SummaryTTL     time.Duration
}

// Deps are the collaborators of a Pipeline. Transcriber, ChapterTranscriber,
// Translator, Sanitizer and Metrics are optional.
type Deps struct {
	Blobs              upload.Store
	Transcriber        transcribe.Transcriber
	ChapterTranscriber transcribe.ChapterTranscriber
	Translator         translate.Provider
	Summaries          summary.Store
	Spots              spot.Repository
	Counter            *badge.Counter
	Sanitizer          image.Sanitizer
	Metrics            *Metrics
	Logger             *slog.Logger
}

// Pipeline ingests spot submissions.
type Pipeline struct {
	blobs       upload.Store
	transcriber transcribe.Transcriber
	chapters    transcribe.ChapterTranscriber
	fanout      *translate.Fanout
	summaries   summary.Store
	spots       spot.Repository
	counter     *badge.Counter
	sanitizer   image.Sanitizer
	metrics     *Metrics
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
}

// NewPipeline validates deps, applies config defaults and creates a Pipeline.
func NewPipeline(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Blobs == nil:
		return nil, errors.New("ingest: blob store is required")
	case deps.Summaries == nil:
		return nil, errors.New("ingest: summary store is required")
	case deps.Spots == nil:
		return nil, errors.New("ingest: spot repository is required")
	case deps.Counter == nil:
		return nil, errors.New("ingest: badge counter is required")
	}

	if cfg.AudioBucket == "" {
		cfg.AudioBucket = upload.DefaultAudioBucket
	}
	if cfg.ImageBucket == "" {
		cfg.ImageBucket = upload.DefaultImageBucket
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = translate.DefaultTargets()
	}
	if cfg.Policy == "" {
		cfg.Policy = translate.PolicyPlaceholder
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = summary.DefaultTTL
	}
	if cfg.SanitizeImages && deps.Sanitizer == nil {
		return nil, errors.New("ingest: image sanitizing enabled without a sanitizer")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		blobs:       deps.Blobs,
		transcriber: deps.Transcriber,
		chapters:    deps.ChapterTranscriber,
		fanout: &translate.Fanout{
			Provider:    deps.Translator,
			Targets:     cfg.Targets,
			Policy:      cfg.Policy,
			Concurrency: cfg.TranslationConcurrency,
		},
		summaries: deps.Summaries,
		spots:     deps.Spots,
		counter:   deps.Counter,
		sanitizer: deps.Sanitizer,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// validated is a submission that passed validation.
type validated struct {
	username    string
	spotName    string
	category    string
	description string
	lat, lon    float64
	audio       File
	image       File
}

// captionSet is the outcome of the transcription and translation stages.
type captionSet struct {
	transcription string
	language      string
	captions      translate.Captions
}

// Submit runs a submission through every stage and returns the persisted spot.
//
// Errors: *ValidationError (nothing uploaded or written), *StorageError
// (nothing persisted), *ProviderError (fail policy only, nothing persisted),
// *PersistenceError. Provider degradation and failed post-insert hooks do not
// fail the call; they are reported on the Result.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (res *Result, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ingest.Submit")
	defer func() { endSpan(err) }()

	res = &Result{Warnings: []Warning{}, SideEffectErrors: []string{}}

	v, err := p.validate(sub)
	if err != nil {
		p.metrics.recordOutcome(OutcomeRejected)
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.String("spot.username", v.username))

	audioURL, imageURL, err := p.storeBlobs(ctx, v, res)
	if err != nil {
		p.metrics.recordOutcome(OutcomeFailed)
		return nil, err
	}

	cs, err := p.captions(ctx, v.audio, res)
	if err != nil {
		p.metrics.recordOutcome(OutcomeFailed)
		return nil, err
	}

	spotSummary, claimed := p.claimSummary(ctx, sub.SummaryToken, v.username, res)

	s := &spot.Spot{
		ID:                 uuid.NewString(),
		Username:           v.username,
		SpotName:           v.spotName,
		Category:           v.category,
		Description:        v.description,
		Latitude:           v.lat,
		Longitude:          v.lon,
		Geohash:            geo.Encode(v.lat, v.lon, geo.DefaultPrecision),
		OriginalLanguage:   cs.language,
		ImageURL:           imageURL,
		AudioURL:           audioURL,
		Transcription:      cs.transcription,
		TranslatedCaptions: cs.captions,
		Summary:            spotSummary,
		CreatedAt:          p.now().UTC(),
	}

	start := time.Now()
	if err := p.spots.Insert(ctx, s); err != nil {
		p.metrics.observeStage(StagePersist, start)
		p.metrics.recordOutcome(OutcomeFailed)
		p.logger.ErrorContext(ctx, "failed to persist spot",
			slog.String("username", v.username),
			slog.String("error", err.Error()))
		p.restoreSummary(ctx, sub.SummaryToken, claimed)
		return nil, newPersistenceError(err)
	}
	p.metrics.observeStage(StagePersist, start)
	res.Spot = s

	p.runSideEffects(ctx, v.username, res)

	if len(res.Warnings) > 0 {
		p.metrics.recordOutcome(OutcomeDegraded)
	} else {
		p.metrics.recordOutcome(OutcomeCreated)
	}

	p.logger.InfoContext(ctx, "spot ingested",
		slog.String("spot_id", s.ID),
		slog.String("username", s.Username),
		slog.String("language", s.OriginalLanguage),
		slog.Int("warnings", len(res.Warnings)),
		slog.Int("side_effect_errors", len(res.SideEffectErrors)))

	return res, nil
}

func (p *Pipeline) validate(sub Submission) (*validated, error) {
	if sub.Audio == nil || len(sub.Audio.Data) == 0 {
		return nil, &ValidationError{Field: "audio", Message: "audio file is required"}
	}
	if sub.Image == nil || len(sub.Image.Data) == 0 {
		return nil, &ValidationError{Field: "image", Message: "image file is required"}
	}

	v := &validated{}
	var err error

	if v.username, err = validate.Username(sub.Username); err != nil {
		return nil, &ValidationError{Field: "username", Message: err.Error()}
	}
	if v.spotName, err = validate.SpotName(sub.SpotName); err != nil {
		return nil, &ValidationError{Field: "spotname", Message: err.Error()}
	}
	if v.category, err = validate.Category(sub.Category); err != nil {
		return nil, &ValidationError{Field: "category", Message: err.Error()}
	}
	if v.description, err = validate.Description(sub.Description); err != nil {
		return nil, &ValidationError{Field: "description", Message: err.Error()}
	}
	if v.lat, err = validate.Latitude(sub.Latitude); err != nil {
		return nil, &ValidationError{Field: "latitude", Message: err.Error()}
	}
	if v.lon, err = validate.Longitude(sub.Longitude); err != nil {
		return nil, &ValidationError{Field: "longitude", Message: err.Error()}
	}

	audioType, err := validate.AudioFile(sub.Audio.ContentType, int64(len(sub.Audio.Data)), p.cfg.MaxAudioBytes)
	if err != nil {
		return nil, &ValidationError{Field: "audio", Message: err.Error()}
	}
	imageType, err := validate.ImageFile(sub.Image.ContentType, int64(len(sub.Image.Data)), p.cfg.MaxImageBytes)
	if err != nil {
		return nil, &ValidationError{Field: "image", Message: err.Error()}
	}

	v.audio = File{Data: sub.Audio.Data, ContentType: audioType, Filename: sub.Audio.Filename}
	v.image = File{Data: sub.Image.Data, ContentType: imageType, Filename: sub.Image.Filename}
	return v, nil
}

// storeBlobs optionally sanitizes the photo, then uploads audio and image.
func (p *Pipeline) storeBlobs(ctx context.Context, v *validated, res *Result) (audioURL, imageURL string, err error) {
	defer p.metrics.observeStage(StageUpload, time.Now())

	img := v.image
	if p.cfg.SanitizeImages {
		clean, contentType, serr := p.sanitizer.Sanitize(img.Data)
		if serr != nil {
			p.logger.WarnContext(ctx, "image sanitization failed, uploading original",
				slog.String("error", serr.Error()))
			res.Warnings = append(res.Warnings, Warning{
				Kind:    WarningImageUnsanitized,
				Stage:   StageUpload,
				Message: serr.Error(),
			})
		} else {
			img.Data, img.ContentType = clean, contentType
		}
	}

	now := p.now()
	audioKey := upload.ObjectKey(upload.AudioPrefix, v.audio.ContentType, now)
	if err := p.blobs.Put(ctx, p.cfg.AudioBucket, audioKey, v.audio.Data, v.audio.ContentType); err != nil {
		return "", "", &StorageError{Bucket: p.cfg.AudioBucket, Err: err}
	}

	imageKey := upload.ObjectKey(upload.ImagePrefix, img.ContentType, now)
	if err := p.blobs.Put(ctx, p.cfg.ImageBucket, imageKey, img.Data, img.ContentType); err != nil {
		return "", "", &StorageError{Bucket: p.cfg.ImageBucket, Err: err}
	}

	return p.blobs.PublicURL(p.cfg.AudioBucket, audioKey), p.blobs.PublicURL(p.cfg.ImageBucket, imageKey), nil
}

// captions transcribes the audio and translates the text into every target.
// Only a translation failure under the fail policy returns an error.
func (p *Pipeline) captions(ctx context.Context, audio File, res *Result) (*captionSet, error) {
	start := time.Now()
	tr, err := p.transcribe(ctx, audio)
	p.metrics.observeStage(StageTranscribe, start)
	if err != nil {
		p.logger.WarnContext(ctx, "transcription failed, storing empty captions",
			slog.String("error", err.Error()))
		p.metrics.recordProviderFailure(transcribe.ProviderWhisper, StageTranscribe)
		res.Warnings = append(res.Warnings, Warning{
			Kind:    WarningProviderDegraded,
			Stage:   "transcription",
			Message: err.Error(),
		})
		return p.emptyCaptions(spot.DefaultLanguage, ""), nil
	}

	language := translate.Normalize(tr.Language)
	if strings.TrimSpace(tr.Text) == "" {
		return p.emptyCaptions(language, tr.Text), nil
	}

	start = time.Now()
	defer p.metrics.observeStage(StageTranslate, start)

	captions, err := p.translate(ctx, tr.Text, language, res)
	if err != nil {
		return nil, err
	}
	return &captionSet{transcription: tr.Text, language: language, captions: captions}, nil
}

func (p *Pipeline) transcribe(ctx context.Context, audio File) (*transcribe.Result, error) {
	if p.transcriber == nil {
		return nil, errors.New("no transcriber configured")
	}
	return p.transcriber.Transcribe(ctx, transcribe.Audio{
		Data:        audio.Data,
		ContentType: audio.ContentType,
		Filename:    audio.Filename,
	})
}

// emptyCaptions holds the placeholder for every target plus the original language.
func (p *Pipeline) emptyCaptions(language, text string) *captionSet {
	captions := make(translate.Captions, len(p.cfg.Targets)+1)
	for _, target := range p.cfg.Targets {
		captions[target] = translate.Placeholder
	}
	captions[language] = text
	return &captionSet{transcription: text, language: language, captions: captions}
}

// translate pivots through English: non-English text is translated to English
// first and the remaining targets are translated from that. The detected
// language is never sent to the provider. When the pivot fails
// the English slot holds the placeholder and the other targets are translated
// from the original text. The detected language always keeps the original text.
func (p *Pipeline) translate(ctx context.Context, text, language string, res *Result) (translate.Captions, error) {
	var (
		captions translate.Captions
		failures []*translate.FailedError
		err      error
	)

	if language == translate.English {
		captions, failures, err = p.fanout.Run(ctx, text, translate.English)
	} else {
		pivot, perr := p.fanout.Translate(ctx, text, language, translate.English)
		switch {
		case perr == nil:
			captions, failures, err = p.fanout.RunTargets(ctx, pivot, translate.English, p.targetsExcept(language))
		case p.cfg.Policy == translate.PolicyFail:
			return nil, p.providerFailed(perr)
		default:
			p.degradeTranslation(ctx, perr, res)
			captions, failures, err = p.fanout.RunTargets(ctx, text, language, p.targetsExcept(translate.English, language))
			if captions != nil {
				captions[translate.English] = translate.Placeholder
			}
		}
	}

	if err != nil {
		return nil, p.providerFailed(err)
	}
	for _, f := range failures {
		p.degradeTranslation(ctx, f, res)
	}

	captions[language] = text
	return captions, nil
}

// targetsExcept returns the configured targets without skip, in order.
func (p *Pipeline) targetsExcept(skip ...string) []string {
	out := make([]string, 0, len(p.cfg.Targets))
	for _, target := range p.cfg.Targets {
		if !slices.Contains(skip, target) {
			out = append(out, target)
		}
	}
	return out
}

func (p *Pipeline) degradeTranslation(ctx context.Context, err error, res *Result) {
	stage := "translation"
	var failed *translate.FailedError
	if errors.As(err, &failed) {
		stage = "translation:" + failed.Target
	}

	p.metrics.recordProviderFailure(translate.ProviderOpenAI, stage)
	p.logger.WarnContext(ctx, "translation failed, storing placeholder",
		slog.String("stage", stage),
		slog.String("error", err.Error()))
	res.Warnings = append(res.Warnings, Warning{
		Kind:    WarningProviderDegraded,
		Stage:   stage,
		Message: err.Error(),
	})
}

func (p *Pipeline) providerFailed(err error) *ProviderError {
	stage := "translation"
	var failed *translate.FailedError
	if errors.As(err, &failed) {
		stage = "translation:" + failed.Target
	}
	p.metrics.recordProviderFailure(translate.ProviderOpenAI, stage)
	return &ProviderError{Stage: stage, Err: err}
}

// claimSummary claims the pending summary for token on behalf of username.
// It returns nil text when no token was given, the token is unknown or
// expired, or it belongs to another user; an entry owned by someone else is
// left in the store. The claimed entry is returned so a failed insert can put
// it back.
func (p *Pipeline) claimSummary(ctx context.Context, token, username string, res *Result) (*string, *summary.Entry) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	defer p.metrics.observeStage(StageSummary, time.Now())

	unavailable := func(reason string) {
		res.Warnings = append(res.Warnings, Warning{
			Kind:    WarningSummaryUnavailable,
			Stage:   StageSummary,
			Message: reason,
		})
	}

	entry, err := p.summaries.Claim(ctx, token, username)
	switch {
	case errors.Is(err, summary.ErrNotFound):
		unavailable("summary token is unknown, expired or already used")
		return nil, nil
	case errors.Is(err, summary.ErrNotOwner):
		unavailable("summary token belongs to another user")
		return nil, nil
	case err != nil:
		p.logger.WarnContext(ctx, "failed to read pending summary", slog.String("error", err.Error()))
		unavailable("summary store unavailable")
		return nil, nil
	case strings.TrimSpace(entry.Summary) == "":
		unavailable("no summary was produced for this recording")
		return nil, entry
	}

	text := entry.Summary
	return &text, entry
}

// restoreSummary puts a claimed entry back under token for the rest of its TTL
// so a retry of the failed submission can still attach it.
func (p *Pipeline) restoreSummary(ctx context.Context, token string, entry *summary.Entry) {
	if entry == nil {
		return
	}
	ttl := entry.TTL(time.Now())
	if ttl <= 0 {
		return
	}
	if err := p.summaries.Put(context.WithoutCancel(ctx), strings.TrimSpace(token), *entry, ttl); err != nil {
		p.logger.WarnContext(ctx, "failed to restore pending summary", slog.String("error", err.Error()))
	}
}

// runSideEffects runs the post-insert hooks concurrently. They use a detached
// context so a disconnecting client does not cut them short.
func (p *Pipeline) runSideEffects(ctx context.Context, username string, res *Result) {
	defer p.metrics.observeStage(StageSideEffects, time.Now())

	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	var (
		g                 errgroup.Group
		awardErr, postErr error
	)
	g.Go(func() error {
		res.BadgeScore, awardErr = p.counter.AwardOnIngestion(hookCtx, username)
		return nil
	})
	g.Go(func() error {
		res.PostCount, postErr = p.counter.RecomputePostCount(hookCtx, username)
		return nil
	})
	_ = g.Wait()

	for _, se := range []*SideEffectError{
		{Effect: EffectBadgeAward, Err: awardErr},
		{Effect: EffectPostCount, Err: postErr},
	} {
		if se.Err == nil {
			continue
		}
		p.metrics.recordSideEffectError(se.Effect)
		p.logger.ErrorContext(ctx, "post-insert side effect failed",
			slog.String("effect", se.Effect),
			slog.String("username", username),
			slog.String("error", se.Err.Error()))
		res.SideEffectErrors = append(res.SideEffectErrors, se.Error())
	}
}
