package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// Query-string token sources.
const (
	SourceMtime       = "mtime"
	SourceFingerprint = "fingerprint"
)

const defaultCacheSize = 1024

type tokenKey struct {
	path    string
	modTime int64
	size    int64
}

// QueryStringStrategy appends a cache-busting token to the logical name:
// the file's modification time or its content fingerprint.
type QueryStringStrategy struct {
	base   string
	param  string
	source string
	fp     *revision.Fingerprinter
	tokens *lru.Cache[tokenKey, string]
}

// NewQueryStringStrategy creates the strategy from settings.
func NewQueryStringStrategy(s Settings) (*QueryStringStrategy, error) {
	param := s.QueryParam
	if param == "" {
		param = "v"
	}
	source := s.QuerySource
	if source == "" {
		source = SourceMtime
	}
	if source != SourceMtime && source != SourceFingerprint {
		return nil, fmt.Errorf("unknown query-string source %q (want %s or %s)", source, SourceMtime, SourceFingerprint)
	}
	fp := s.Fingerprinter
	if fp == nil {
		fp = revision.DefaultFingerprinter()
	}
	size := s.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	tokens, err := lru.New[tokenKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &QueryStringStrategy{
		base:   s.AssetsBasePath,
		param:  param,
		source: source,
		fp:     fp,
		tokens: tokens,
	}, nil
}

func (s *QueryStringStrategy) Name() string { return "querystring" }

// Resolve answers only when the file exists under the assets base path.
func (s *QueryStringStrategy) Resolve(_ context.Context, logical string) (string, bool, error) {
	full := filepath.Join(s.base, filepath.FromSlash(logical))
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !info.Mode().IsRegular() {
		return "", false, nil
	}

	key := tokenKey{path: full, modTime: info.ModTime().UnixNano(), size: info.Size()}
	token, ok := s.tokens.Get(key)
	if !ok {
		token, err = s.token(full, info)
		if err != nil {
			return "", false, err
		}
		s.tokens.Add(key, token)
	}

	sep := "?"
	if strings.Contains(logical, "?") {
		sep = "&"
	}
	return logical + sep + s.param + "=" + token, true, nil
}

func (s *QueryStringStrategy) token(full string, info fs.FileInfo) (string, error) {
	if s.source == SourceFingerprint {
		return s.fp.SumFile(full)
	}
	return strconv.FormatInt(info.ModTime().Unix(), 10), nil
}
