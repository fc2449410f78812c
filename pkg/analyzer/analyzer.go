// Package analyzer orchestrates the hybrid damage analysis pipeline: it
// loads the photo once, tries the cloud model when a credential is present,
// falls back to the on-device tag classifier on any cloud failure, and
// persists every completed analysis.
package analyzer

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/cardamage/damage-analyzer/pkg/classifier"
	"github.com/cardamage/damage-analyzer/pkg/credentials"
	"github.com/cardamage/damage-analyzer/pkg/tagger"
	"github.com/cardamage/damage-analyzer/pkg/types"
)

// CloudClient analyzes a JPEG-encoded photo with a remote multimodal model.
type CloudClient interface {
	Analyze(ctx context.Context, imageJPEG []byte, credential string) (types.DamageAnalysis, error)
}

// ImageSource resolves an opaque image reference into model-ready bytes.
type ImageSource interface {
	Load(ctx context.Context, reference string) ([]byte, error)
}

// Recorder persists completed analyses.
type Recorder interface {
	Insert(ctx context.Context, record *types.AnalysisRecord) (int64, error)
}

// Orchestrator owns the lifecycle of one analysis request end to end:
// load, analyze, persist.
type Orchestrator struct {
	source      ImageSource
	cloud       CloudClient
	tagger      tagger.Tagger
	classifier  *classifier.Classifier
	credentials credentials.Store
	store       Recorder
}

// New creates an Orchestrator. All collaborators are required except tagger,
// which may be nil when no local vision engine is available; the classifier
// then works from an empty tag set.
func New(source ImageSource, cloud CloudClient, tg tagger.Tagger, creds credentials.Store, store Recorder) *Orchestrator {
	return &Orchestrator{
		source:      source,
		cloud:       cloud,
		tagger:      tg,
		classifier:  classifier.New(),
		credentials: creds,
		store:       store,
	}
}

// Run analyzes one image reference and persists the outcome.
//
// Failure policy: every cloud-path failure silently degrades to the
// on-device path, so an analysis result is produced whenever the image
// itself can be loaded. The two errors that do reach the caller are an
// image load failure (no image, no analysis) and a persistence failure;
// for the latter the computed analysis is still returned alongside the
// error so a UI can display it.
func (o *Orchestrator) Run(ctx context.Context, imageReference string) (types.DamageAnalysis, error) {
	logger := log.WithFields(log.Fields{
		"request_id": uuid.New().String(),
		"image":      imageReference,
	})

	imageData, err := o.source.Load(ctx, imageReference)
	if err != nil {
		logger.WithError(err).Error("image load failed")
		return types.DamageAnalysis{}, err
	}

	result, ok := o.tryCloud(ctx, logger, imageData)
	if !ok {
		result = o.fallback(ctx, logger, imageData)
	}

	// A torn-down context means the run is incomplete; never persist a
	// record for it.
	if err := ctx.Err(); err != nil {
		return types.DamageAnalysis{}, err
	}

	record := &types.AnalysisRecord{
		ImageReference: imageReference,
		DamageType:     result.DamageType,
		SeverityLevel:  result.SeverityLevel,
		Confidence:     result.Confidence,
		EstimatedCost:  result.EstimatedCost,
		Timestamp:      time.Now().UnixMilli(),
	}
	if result.Description != "" {
		record.Description = &result.Description
	}

	if _, err := o.store.Insert(ctx, record); err != nil {
		logger.WithError(err).Error("persisting analysis failed")
		return result, err
	}

	logger.WithFields(log.Fields{
		"record_id":   record.ID,
		"damage_type": result.DamageType,
		"severity":    result.SeverityLevel,
	}).Info("analysis complete")
	return result, nil
}

// tryCloud runs the cloud path when a credential is present. It reports
// ok=false when the path was skipped or failed; the failure itself is only
// logged and never shapes the returned result.
func (o *Orchestrator) tryCloud(ctx context.Context, logger log.Interface, imageData []byte) (types.DamageAnalysis, bool) {
	credential, present := o.credentials.Get()
	if !present {
		logger.Debug("no credential, using on-device path")
		return types.DamageAnalysis{}, false
	}

	result, err := o.cloud.Analyze(ctx, imageData, credential)
	if err != nil {
		logger.WithError(err).Warn("cloud analysis failed, falling back to on-device path")
		return types.DamageAnalysis{}, false
	}

	logger.Info("cloud analysis succeeded")
	return result, true
}

// fallback produces a result from on-device tags. It is total: a tagger
// failure just means classifying an empty tag set.
func (o *Orchestrator) fallback(ctx context.Context, logger log.Interface, imageData []byte) types.DamageAnalysis {
	var tags []string
	if o.tagger != nil {
		var err error
		tags, err = o.tagger.Tags(ctx, imageData)
		if err != nil {
			logger.WithError(err).Warn("tag extraction failed, classifying without tags")
			tags = nil
		}
	}
	return o.classifier.Classify(tags)
}
