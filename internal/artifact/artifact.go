// Package artifact serializes the author and submission maps of a run to a
// blob store and reads them back for ingestion.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

const (
	authorsFile     = "authors.json"
	submissionsFile = "submissions.json"
	manifestFile    = "manifest.json"
	contentTypeJSON = "application/json"
)

// Object describes one written artifact.
type Object struct {
	Path   string `json:"path"`
	URI    string `json:"uri"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
	Count  int    `json:"count"`
}

// Manifest is written alongside each run's artifacts.
type Manifest struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Authors     Object    `json:"authors"`
	Submissions Object    `json:"submissions"`
	URI         string    `json:"uri,omitempty"`
}

// Writer persists run artifacts under Prefix.
type Writer struct {
	store  reddit.BlobStore
	hasher reddit.Hasher
	clock  reddit.Clock
	prefix string
}

// NewWriter creates a Writer.
func NewWriter(store reddit.BlobStore, hasher reddit.Hasher, clock reddit.Clock, prefix string) (*Writer, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	return &Writer{store: store, hasher: hasher, clock: clock, prefix: prefix}, nil
}

// Save writes the author map, the submission map and the run manifest.
func (w *Writer) Save(ctx context.Context, runID string, authors reddit.AuthorMap, subs reddit.SubmissionMap) (Manifest, error) {
	if authors == nil {
		authors = reddit.AuthorMap{}
	}
	if subs == nil {
		subs = reddit.SubmissionMap{}
	}
	m := Manifest{RunID: runID, CreatedAt: w.clock.Now().UTC()}

	var err error
	if m.Authors, err = w.put(ctx, path.Join(w.prefix, authorsFile), authors, len(authors)); err != nil {
		return Manifest{}, err
	}
	if m.Submissions, err = w.put(ctx, path.Join(w.prefix, submissionsFile), subs, len(subs)); err != nil {
		return Manifest{}, err
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := path.Join(w.prefix, "runs", runID, manifestFile)
	uri, err := w.store.PutObject(ctx, manifestPath, contentTypeJSON, bytes.NewReader(body))
	if err != nil {
		return Manifest{}, fmt.Errorf("put manifest: %w", err)
	}
	m.URI = uri
	return m, nil
}

func (w *Writer) put(ctx context.Context, p string, v any, count int) (Object, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Object{}, fmt.Errorf("marshal %s: %w", p, err)
	}
	digest, err := w.hasher.Hash(body)
	if err != nil {
		return Object{}, fmt.Errorf("hash %s: %w", p, err)
	}
	uri, err := w.store.PutObject(ctx, p, contentTypeJSON, bytes.NewReader(body))
	if err != nil {
		return Object{}, fmt.Errorf("put %s: %w", p, err)
	}
	return Object{Path: p, URI: uri, SHA256: digest, Bytes: len(body), Count: count}, nil
}

// Load reads the latest author and submission maps written under prefix.
func Load(ctx context.Context, store reddit.BlobStore, prefix string) (reddit.AuthorMap, reddit.SubmissionMap, error) {
	authors := reddit.AuthorMap{}
	if err := get(ctx, store, path.Join(prefix, authorsFile), &authors); err != nil {
		return nil, nil, err
	}
	subs := reddit.SubmissionMap{}
	if err := get(ctx, store, path.Join(prefix, submissionsFile), &subs); err != nil {
		return nil, nil, err
	}
	return authors, subs, nil
}

// LoadManifest reads the manifest of a previous run.
func LoadManifest(ctx context.Context, store reddit.BlobStore, prefix, runID string) (Manifest, error) {
	var m Manifest
	if err := get(ctx, store, path.Join(prefix, "runs", runID, manifestFile), &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Verifier checks content against a digest recorded in a manifest.
type Verifier interface {
	Verify(data []byte, digest string) error
}

// Verify re-reads the objects listed in m and checks them against their
// recorded digests.
func Verify(ctx context.Context, store reddit.BlobStore, v Verifier, m Manifest) error {
	for _, obj := range []Object{m.Authors, m.Submissions} {
		body, err := read(ctx, store, obj.Path)
		if err != nil {
			return err
		}
		if err := v.Verify(body, obj.SHA256); err != nil {
			return fmt.Errorf("verify %s: %w", obj.Path, err)
		}
	}
	return nil
}

func get(ctx context.Context, store reddit.BlobStore, p string, v any) error {
	body, err := read(ctx, store, p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

func read(ctx context.Context, store reddit.BlobStore, p string) ([]byte, error) {
	rc, err := store.GetObject(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	defer func() {
		_ = rc.Close()
	}()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return body, nil
}
