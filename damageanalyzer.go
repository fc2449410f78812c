// Package damageanalyzer estimates vehicle body damage from a single
// photograph.
//
// The package combines a cloud multimodal model with an on-device fallback
// classifier so a result is always produced, even in degraded network
// conditions: when a credential is configured and the cloud model is
// reachable it provides the analysis, and on any cloud failure the pipeline
// silently degrades to local label tagging plus a deterministic heuristic
// scorer. Every completed analysis is appended to a persistent history log.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		damageanalyzer "github.com/cardamage/damage-analyzer"
//	)
//
//	func main() {
//		da, err := damageanalyzer.New(damageanalyzer.Options{
//			HistoryPath: "history.db",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer da.Close()
//
//		// Optional: enable the cloud path.
//		da.SetCredential("sk-ant-...")
//
//		result, err := da.Analyze(context.Background(), "photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("%s (severity %d, confidence %.2f): ~%.0f\n",
//			result.DamageType, result.SeverityLevel, result.Confidence, result.EstimatedCost)
//	}
//
// The package consists of five main components:
//
//  1. Cloud client (pkg/cloud): calls the remote model and parses its
//     loosely-structured reply with a tolerant strategy chain
//  2. Classifier (pkg/classifier): maps on-device tags to a damage estimate
//  3. Orchestrator (pkg/analyzer): chooses the path, enforces
//     fallback-on-any-cloud-error, persists the outcome
//  4. History (pkg/history): append-only record log with a live feed
//  5. State (pkg/state): the Loading/Success/Error projection a UI observes
package damageanalyzer

import (
	"context"
	"time"

	"github.com/cardamage/damage-analyzer/internal/config"
	"github.com/cardamage/damage-analyzer/pkg/analyzer"
	"github.com/cardamage/damage-analyzer/pkg/cloud"
	"github.com/cardamage/damage-analyzer/pkg/credentials"
	"github.com/cardamage/damage-analyzer/pkg/history"
	"github.com/cardamage/damage-analyzer/pkg/imagesource"
	"github.com/cardamage/damage-analyzer/pkg/state"
	"github.com/cardamage/damage-analyzer/pkg/tagger"
	"github.com/cardamage/damage-analyzer/pkg/types"
)

// Version of the damage analyzer library
const Version = "1.0.0"

// Options configures a DamageAnalyzer. Zero values select sensible defaults;
// an empty HistoryPath stores history in memory.
type Options struct {
	// Cloud path
	CloudEndpoint string
	CloudModel    string
	CloudTimeout  time.Duration

	// On-device path. OllamaURL empty disables local tagging; the
	// classifier then works from an empty tag set.
	OllamaURL   string
	TaggerModel string

	// Image upload encoding
	MaxImageDimension int
	JPEGQuality       int

	// History database path; empty means ":memory:".
	HistoryPath string

	// Credentials overrides the default in-memory credential holder.
	Credentials credentials.Store

	// Tagger overrides the Ollama tagger, e.g. with a test double.
	Tagger tagger.Tagger
}

// DamageAnalyzer provides the high-level interface over the hybrid pipeline.
type DamageAnalyzer struct {
	projection  *state.Projection
	store       *history.Store
	credentials credentials.Store
}

// New creates a DamageAnalyzer from Options.
func New(opts Options) (*DamageAnalyzer, error) {
	historyPath := opts.HistoryPath
	if historyPath == "" {
		historyPath = ":memory:"
	}
	store, err := history.Open(historyPath)
	if err != nil {
		return nil, err
	}

	creds := opts.Credentials
	if creds == nil {
		creds = credentials.NewMemory()
	}

	tg := opts.Tagger
	if tg == nil && opts.OllamaURL != "" {
		model := opts.TaggerModel
		if model == "" {
			model = "llava"
		}
		ollamaTagger, err := tagger.NewOllamaTagger(opts.OllamaURL, model)
		if err != nil {
			store.Close()
			return nil, err
		}
		tg = ollamaTagger
	}

	cloudClient := cloud.NewWithConfig(cloud.Config{
		Endpoint: opts.CloudEndpoint,
		Model:    opts.CloudModel,
		Timeout:  opts.CloudTimeout,
	})

	loader := imagesource.NewWithConfig(imagesource.Config{
		MaxDimension: opts.MaxImageDimension,
		JPEGQuality:  opts.JPEGQuality,
	})

	orchestrator := analyzer.New(loader, cloudClient, tg, creds, store)

	return &DamageAnalyzer{
		projection:  state.New(orchestrator),
		store:       store,
		credentials: creds,
	}, nil
}

// Open creates a DamageAnalyzer from the JSON config file at configPath
// (defaults, then file, then environment overrides). An empty path uses the
// default config location.
func Open(configPath string) (*DamageAnalyzer, error) {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	da, err := New(Options{
		CloudEndpoint:     cfg.Cloud.Endpoint,
		CloudModel:        cfg.Cloud.Model,
		CloudTimeout:      time.Duration(cfg.Cloud.TimeoutSeconds) * time.Second,
		OllamaURL:         cfg.Tagger.OllamaURL,
		TaggerModel:       cfg.Tagger.Model,
		MaxImageDimension: cfg.Image.MaxDimension,
		JPEGQuality:       cfg.Image.JPEGQuality,
		HistoryPath:       cfg.History.Path,
	})
	if err != nil {
		return nil, err
	}

	if cfg.APIKey != "" {
		if err := da.SetCredential(cfg.APIKey); err != nil {
			da.Close()
			return nil, err
		}
	}
	return da, nil
}

// Analyze runs one analysis request: load the photo, analyze via the cloud
// or on-device path, persist the result. The state projection transitions
// Loading then Success or Error around the call. When only persistence
// failed, the computed analysis is returned together with the error.
func (da *DamageAnalyzer) Analyze(ctx context.Context, imageReference string) (types.DamageAnalysis, error) {
	return da.projection.Run(ctx, imageReference)
}

// State returns the projection's current snapshot.
func (da *DamageAnalyzer) State() state.Snapshot {
	return da.projection.Current()
}

// Watch observes the projection's state transitions.
func (da *DamageAnalyzer) Watch() (<-chan state.Snapshot, func()) {
	return da.projection.Watch()
}

// History returns all persisted analyses, most recent first.
func (da *DamageAnalyzer) History(ctx context.Context) ([]types.AnalysisRecord, error) {
	return da.store.ListAll(ctx)
}

// HistoryFeed returns a live view of the history list: the current list
// immediately, then a fresh one after every insert or delete.
func (da *DamageAnalyzer) HistoryFeed() (<-chan []types.AnalysisRecord, func()) {
	return da.store.Subscribe()
}

// Record returns one persisted analysis by id, or nil when it does not exist.
func (da *DamageAnalyzer) Record(ctx context.Context, id int64) (*types.AnalysisRecord, error) {
	return da.store.GetByID(ctx, id)
}

// DeleteRecord removes one persisted analysis. Deleting a missing id is a
// no-op.
func (da *DamageAnalyzer) DeleteRecord(ctx context.Context, id int64) error {
	return da.store.DeleteByID(ctx, id)
}

// SetCredential stores the cloud API credential. The cloud path is attempted
// only while a credential is set.
func (da *DamageAnalyzer) SetCredential(credential string) error {
	return da.credentials.Set(credential)
}

// ClearCredential removes the cloud API credential; later analyses use the
// on-device path only.
func (da *DamageAnalyzer) ClearCredential() error {
	return da.credentials.Clear()
}

// Close releases the history store.
func (da *DamageAnalyzer) Close() error {
	return da.store.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
