package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/vfs"
	"github.com/wippyai/wasi-harness/wasi/preview1"
)

// DefaultConcurrency bounds parallel fetches when Loader.Concurrency is unset.
const DefaultConcurrency = 8

// Loader fetches a manifest's artifacts and assembles the sandbox tree.
type Loader struct {
	Source      Source
	Concurrency int
	// OnLoaded is called once per artifact as soon as it is fetched. Calls
	// are serialized.
	OnLoaded func(name string)
	Logger   *zap.Logger
}

// Bundle is everything a harness needs from the assets.
type Bundle struct {
	Guest         []byte
	Preopens      []preview1.Preopen
	SourcePreopen string
	SourceFile    string
}

// Load fetches every artifact of m. The first failure cancels the remaining
// fetches.
func (l *Loader) Load(ctx context.Context, m *Manifest) (*Bundle, error) {
	if l.Source == nil {
		return nil, errors.NotInitialized(errors.PhaseAssets, "asset source")
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := l.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	start := time.Now()
	artifacts := m.Artifacts()
	data := make([][]byte, len(artifacts))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, a := range artifacts {
		g.Go(func() error {
			b, err := readArtifact(gctx, l.Source, a.Source)
			if err != nil {
				return err
			}
			if err := verify(m.Checksums, a.Source, b); err != nil {
				return err
			}
			data[i] = b
			logger.Debug("artifact loaded", zap.String("name", a.Name), zap.Int("bytes", len(b)))
			if l.OnLoaded != nil {
				mu.Lock()
				l.OnLoaded(a.Name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	preopens, err := buildPreopens(m, artifacts, data)
	if err != nil {
		return nil, err
	}
	logger.Info("assets loaded",
		zap.Int("artifacts", len(artifacts)),
		zap.Duration("elapsed", time.Since(start)))

	return &Bundle{
		Guest:         data[0],
		Preopens:      preopens,
		SourcePreopen: m.Source.Preopen,
		SourceFile:    m.Source.File,
	}, nil
}

func verify(sums map[string]string, name string, data []byte) error {
	want, ok := sums[name]
	if !ok {
		return nil
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return errors.New(errors.PhaseAssets, errors.KindInvalidData).
			Path(name).
			Detail("checksum mismatch: got %s, want %s", got, want).
			Build()
	}
	return nil
}

// buildPreopens lays out directories and artifacts in manifest order.
func buildPreopens(m *Manifest, artifacts []Artifact, data [][]byte) ([]preview1.Preopen, error) {
	roots := make(map[string]*vfs.Directory, len(m.Preopens))
	out := make([]preview1.Preopen, 0, len(m.Preopens))
	for _, p := range m.Preopens {
		root := vfs.NewDirectory()
		for _, d := range p.Dirs {
			if _, err := vfs.MkdirAll(root, d); err != nil {
				return nil, err
			}
		}
		roots[p.Path] = root
		out = append(out, preview1.Preopen{Path: p.Path, Dir: root, ReadOnly: p.ReadOnly})
	}

	for i, a := range artifacts {
		if a.Preopen == "" {
			continue
		}
		dir, name := path.Split(a.Path)
		parent, err := vfs.MkdirAll(roots[a.Preopen], dir)
		if err != nil {
			return nil, err
		}
		parent.Insert(name, vfs.NewFile(data[i]))
	}
	return out, nil
}
