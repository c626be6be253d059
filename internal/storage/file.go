package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"energy-desk/internal/regime"
)

// SectionKey is the settings file key holding the thresholds record.
const SectionKey = "volatility_thresholds"

type thresholdsSection struct {
	Noise         float64   `yaml:"noise"`
	High          float64   `yaml:"high"`
	Critical      float64   `yaml:"critical"`
	Symbol        string    `yaml:"symbol,omitempty"`
	Degraded      bool      `yaml:"degraded,omitempty"`
	HistoryPoints int       `yaml:"history_points,omitempty"`
	RecentPoints  int       `yaml:"recent_points,omitempty"`
	CalibratedAt  time.Time `yaml:"calibrated_at,omitempty"`
}

// FileStore keeps the thresholds record in the volatility_thresholds section
// of a YAML settings file, leaving every other section untouched.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the settings file location.
func (f *FileStore) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Load reads the thresholds section. A section written for another symbol is
// treated as absent.
func (f *FileStore) Load(_ context.Context, symbol string) (Record, error) {
	if f == nil || f.path == "" {
		return Record{}, ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readDocument()
	if err != nil {
		return Record{}, err
	}
	node := lookup(doc, SectionKey)
	if node == nil {
		return Record{}, ErrNoThresholds
	}

	var sec thresholdsSection
	if err := node.Decode(&sec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", SectionKey, err)
	}
	t := regime.Thresholds{Noise: sec.Noise, High: sec.High, Critical: sec.Critical}
	if t.IsZero() {
		return Record{}, ErrNoThresholds
	}
	if sec.Symbol != "" && !strings.EqualFold(sec.Symbol, strings.TrimSpace(symbol)) {
		return Record{}, ErrNoThresholds
	}

	return Record{
		Symbol:        sec.Symbol,
		Thresholds:    t,
		Degraded:      sec.Degraded,
		HistoryPoints: sec.HistoryPoints,
		RecentPoints:  sec.RecentPoints,
		CalibratedAt:  sec.CalibratedAt.UTC(),
	}, nil
}

// Save replaces the thresholds section and rewrites the file atomically.
func (f *FileStore) Save(_ context.Context, symbol string, rec Record) error {
	if f == nil || f.path == "" {
		return ErrNotConfigured
	}
	if err := rec.Thresholds.Validate(); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readDocument()
	if err != nil {
		return err
	}

	var value yaml.Node
	if err := value.Encode(thresholdsSection{
		Noise:         rec.Thresholds.Noise,
		High:          rec.Thresholds.High,
		Critical:      rec.Thresholds.Critical,
		Symbol:        strings.TrimSpace(symbol),
		Degraded:      rec.Degraded,
		HistoryPoints: rec.HistoryPoints,
		RecentPoints:  rec.RecentPoints,
		CalibratedAt:  rec.CalibratedAt.UTC(),
	}); err != nil {
		return fmt.Errorf("encode %s: %w", SectionKey, err)
	}
	setKey(doc, SectionKey, &value)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeAtomic(f.path, buf.Bytes())
}

func (f *FileStore) readDocument() (*yaml.Node, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", f.path, err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", f.path, err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("settings %s: top level must be a mapping", f.path)
	}
	return &doc, nil
}

func lookup(doc *yaml.Node, key string) *yaml.Node {
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			return root.Content[i+1]
		}
	}
	return nil
}

func setKey(doc *yaml.Node, key string, value *yaml.Node) {
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			value.HeadComment = root.Content[i+1].HeadComment
			root.Content[i+1] = value
			return
		}
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".thresholds-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp settings: %w", err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("chmod temp settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings %s: %w", path, err)
	}
	return nil
}

var _ ThresholdStore = (*FileStore)(nil)
