package resolve

import (
	"github.com/albertocavalcante/assetrev/pkg/config"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// FromConfig builds the configured pipeline. cfg paths must already be
// anchored (see config.Config.WithBase).
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	store, err := revision.OpenFileStore(cfg.Manifest.Path, cfg.Manifest.Format)
	if err != nil {
		return nil, err
	}
	fp, err := revision.NewFingerprinter(revision.Algorithm(cfg.Fingerprint.Algorithm), cfg.FingerprintLength())
	if err != nil {
		return nil, err
	}
	return NewPipeline(cfg.Resolve.Pipeline, cfg.Resolve.URLPrefix, Settings{
		Store:          store,
		AssetsBasePath: cfg.AssetsBasePath(),
		QueryParam:     cfg.Resolve.QueryParam,
		QuerySource:    cfg.Resolve.QuerySource,
		Fingerprinter:  fp,
		CacheSize:      cfg.Resolve.CacheSize,
	})
}
