package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"bodytype/ml"
)

const (
	bundlesDir  = "bundles"
	currentLink = "current"
	tmpPrefix   = ".tmp-"
)

// envelope ties every component file to the run that produced it.
type envelope struct {
	RunID   string          `json:"run_id"`
	Payload json.RawMessage `json:"payload"`
}

// Store keeps published bundles under Root/bundles/<run id> and points
// Root/current at the active one.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) BundlesDir() string {
	return filepath.Join(s.Root, bundlesDir)
}

func (s *Store) CurrentPath() string {
	return filepath.Join(s.Root, currentLink)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Publish stages the bundle and repoints current at it. Readers see either
// the previous bundle or the new one, never a partial write.
func (s *Store) Publish(b *Bundle) (string, error) {
	dir, err := s.Stage(b)
	if err != nil {
		return "", err
	}
	if err := s.Activate(b.Manifest.RunID); err != nil {
		return "", err
	}
	return dir, nil
}

// Stage writes the bundle to a temporary directory and moves it under
// bundles/ without touching current. A staged bundle is complete on disk but
// not served until Activate, and can be dropped with Discard.
func (s *Store) Stage(b *Bundle) (string, error) {
	if err := b.validate(); err != nil {
		return "", err
	}
	if b.Manifest.RunID == "" {
		b.Manifest.RunID = NewRunID()
	}
	if _, err := uuid.Parse(b.Manifest.RunID); err != nil {
		return "", fmt.Errorf("run id %q: %w", b.Manifest.RunID, err)
	}
	modelType, err := ml.ModelType(b.Model)
	if err != nil {
		return "", err
	}
	b.Manifest.ModelType = modelType
	if b.Manifest.CreatedAt.IsZero() {
		b.Manifest.CreatedAt = time.Now().UTC()
	}

	if err := os.MkdirAll(s.BundlesDir(), 0o755); err != nil {
		return "", fmt.Errorf("create bundle root: %w", err)
	}
	runID := b.Manifest.RunID
	final := filepath.Join(s.BundlesDir(), runID)
	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("bundle %s already exists", runID)
	}

	tmp, err := os.MkdirTemp(s.BundlesDir(), tmpPrefix+runID+"-")
	if err != nil {
		return "", fmt.Errorf("create temp bundle: %w", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(tmp)
		}
	}()

	components := map[string]any{
		FileCodec:  b.Codec,
		FileLabels: b.Labels,
		FileScaler: b.Scaler,
		FileModel:  b.Model,
	}
	b.Manifest.Files = make(map[string]string, len(components))
	for _, name := range componentFiles {
		sum, err := writeComponent(filepath.Join(tmp, name), runID, components[name])
		if err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		b.Manifest.Files[name] = sum
	}
	manifest, err := json.MarshalIndent(b.Manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := writeFileSync(filepath.Join(tmp, FileManifest), manifest); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := syncDir(tmp); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("move bundle into place: %w", err)
	}
	published = true
	if err := syncDir(s.BundlesDir()); err != nil {
		return "", err
	}
	b.Dir = final
	return final, nil
}

// Activate points current at a staged bundle.
func (s *Store) Activate(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("run id %q: %w", runID, err)
	}
	if _, err := os.Stat(filepath.Join(s.BundlesDir(), runID, FileManifest)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: bundle %s is not staged", ErrArtifactMissing, runID)
		}
		return err
	}
	return s.setCurrent(runID)
}

// Discard removes a staged bundle. The bundle current points at is refused.
func (s *Store) Discard(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("run id %q: %w", runID, err)
	}
	if current, err := s.Current(); err == nil && current == runID {
		return fmt.Errorf("bundle %s is current", runID)
	}
	return os.RemoveAll(filepath.Join(s.BundlesDir(), runID))
}

func (s *Store) setCurrent(runID string) error {
	tmpLink := s.CurrentPath() + ".tmp"
	if err := os.Remove(tmpLink); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear stale link: %w", err)
	}
	if err := os.Symlink(filepath.Join(bundlesDir, runID), tmpLink); err != nil {
		return fmt.Errorf("link current: %w", err)
	}
	if err := os.Rename(tmpLink, s.CurrentPath()); err != nil {
		os.Remove(tmpLink)
		return fmt.Errorf("swap current: %w", err)
	}
	return syncDir(s.Root)
}

// Current returns the run id current points at.
func (s *Store) Current() (string, error) {
	target, err := os.Readlink(s.CurrentPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: no current bundle in %s", ErrArtifactMissing, s.Root)
		}
		return "", err
	}
	return filepath.Base(target), nil
}

// Load reads the bundle current points at.
func (s *Store) Load(expect Expectation) (*Bundle, error) {
	runID, err := s.Current()
	if err != nil {
		return nil, err
	}
	return LoadDir(filepath.Join(s.BundlesDir(), runID), expect)
}

// LoadDir reads and verifies one bundle directory.
func LoadDir(dir string, expect Expectation) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileManifest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, filepath.Join(dir, FileManifest))
		}
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrArtifactCorrupt, err)
	}
	if manifest.RunID == "" {
		return nil, fmt.Errorf("%w: manifest has no run id", ErrArtifactCorrupt)
	}
	if err := expect.check(manifest.Tag); err != nil {
		return nil, err
	}

	payloads := make(map[string]json.RawMessage, len(componentFiles))
	for _, name := range componentFiles {
		payload, err := readComponent(dir, name, manifest)
		if err != nil {
			return nil, err
		}
		payloads[name] = payload
	}

	b := &Bundle{Manifest: manifest, Dir: dir}
	b.Codec = &ml.Codec{}
	if err := json.Unmarshal(payloads[FileCodec], b.Codec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, FileCodec, err)
	}
	if err := checkColumns(b.Codec.Columns()); err != nil {
		return nil, err
	}
	b.Labels = &ml.LabelMapping{}
	if err := json.Unmarshal(payloads[FileLabels], b.Labels); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, FileLabels, err)
	}
	b.Scaler = &ml.Scaler{}
	if err := json.Unmarshal(payloads[FileScaler], b.Scaler); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, FileScaler, err)
	}
	if err := b.Scaler.Check(ml.FeatureSpecVersion); err != nil {
		return nil, err
	}
	model, err := ml.LoadModel(manifest.ModelType, payloads[FileModel])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, FileModel, err)
	}
	b.Model = model
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Prune removes all but the newest keep bundles and any abandoned temporary
// directories. The current bundle is never removed.
func (s *Store) Prune(keep int) ([]string, error) {
	entries, err := os.ReadDir(s.BundlesDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	current, _ := s.Current()

	type candidate struct {
		runID   string
		created time.Time
	}
	var removed []string
	var bundles []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, tmpPrefix) {
			if err := os.RemoveAll(filepath.Join(s.BundlesDir(), name)); err != nil {
				return removed, err
			}
			removed = append(removed, name)
			continue
		}
		if name == current {
			continue
		}
		c := candidate{runID: name}
		if data, err := os.ReadFile(filepath.Join(s.BundlesDir(), name, FileManifest)); err == nil {
			var manifest Manifest
			if json.Unmarshal(data, &manifest) == nil {
				c.created = manifest.CreatedAt
			}
		}
		bundles = append(bundles, c)
	}

	sort.Slice(bundles, func(i, j int) bool {
		if !bundles[i].created.Equal(bundles[j].created) {
			return bundles[i].created.After(bundles[j].created)
		}
		return bundles[i].runID > bundles[j].runID
	})
	// current counts toward keep.
	if current != "" {
		keep--
	}
	if keep < 0 {
		keep = 0
	}
	if len(bundles) <= keep {
		return removed, nil
	}
	for _, c := range bundles[keep:] {
		if err := os.RemoveAll(filepath.Join(s.BundlesDir(), c.runID)); err != nil {
			return removed, err
		}
		removed = append(removed, c.runID)
	}
	return removed, nil
}

func checkColumns(columns []string) error {
	want := ml.CategoricalColumns()
	if len(columns) != len(want) {
		return fmt.Errorf("%w: codec has columns %v, expected %v", ErrVersionMismatch, columns, want)
	}
	for i := range want {
		if columns[i] != want[i] {
			return fmt.Errorf("%w: codec has columns %v, expected %v", ErrVersionMismatch, columns, want)
		}
	}
	return nil
}

func writeComponent(path, runID string, component any) (string, error) {
	payload, err := json.Marshal(component)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(envelope{RunID: runID, Payload: payload})
	if err != nil {
		return "", err
	}
	if err := writeFileSync(path, data); err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func readComponent(dir, name string, manifest Manifest) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, filepath.Join(dir, name))
		}
		return nil, err
	}
	want, ok := manifest.Files[name]
	if !ok {
		return nil, fmt.Errorf("%w: manifest has no checksum for %s", ErrArtifactCorrupt, name)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != want {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrArtifactCorrupt, name)
	}
	var env envelope
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, name, err)
	}
	if env.RunID != manifest.RunID {
		return nil, fmt.Errorf("%w: %s belongs to run %s, manifest is run %s", ErrArtifactCorrupt, name, env.RunID, manifest.RunID)
	}
	return env.Payload, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
