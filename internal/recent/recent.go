// Package recent keeps a bounded, FIFO-evicted list of recently stored
// texts together with an audit trail of every change, persisted as a single
// JSON document.
package recent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	fsutil "github.com/nickcecere/fpstore/internal/fs"
)

const (
	// DocumentVersion is written into every saved document.
	DocumentVersion = 1

	// DefaultMaxItems is the item capacity of a new index.
	DefaultMaxItems = 25

	// HistoryCapacity bounds the audit log.
	HistoryCapacity = 100

	// ReasonMaxItemsExceeded tags removals caused by eviction.
	ReasonMaxItemsExceeded = "max_items_exceeded"

	// ReasonExplicit tags removals requested through Remove.
	ReasonExplicit = "explicit"
)

// ErrNotFound is returned by Remove for an unknown id.
var ErrNotFound = errors.New("entry not found")

// Action is the kind of change recorded in the audit log.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionQuery  Action = "query"
	ActionClear  Action = "clear"
)

// Entry is one item of the index.
type Entry struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	Text        string           `json:"text"`
	Fingerprint fingerprint.Pair `json:"fingerprint"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    Action         `json:"action"`
	Text      string         `json:"text"`
	RelatedID string         `json:"related_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Document is the persisted form of an index.
type Document struct {
	Version     int          `json:"version"`
	MaxItems    int          `json:"max_items"`
	Items       []Entry      `json:"items"`
	History     []AuditEntry `json:"history"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUpdated time.Time    `json:"last_updated"`
}

// Stats summarises an index.
type Stats struct {
	Path           string         `json:"path"`
	Items          int            `json:"items"`
	MaxItems       int            `json:"max_items"`
	HistoryEntries int            `json:"history_entries"`
	Actions        map[Action]int `json:"actions"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUpdated    time.Time      `json:"last_updated"`
	Oldest         *time.Time     `json:"oldest,omitempty"`
	Newest         *time.Time     `json:"newest,omitempty"`
}

// Index is a bounded recent-items document. All methods are safe for
// concurrent use within one process.
type Index struct {
	path     string
	encoder  *fingerprint.Encoder
	maxItems int
	now      func() time.Time

	mu  sync.Mutex
	doc *Document
}

// Option configures an Index.
type Option func(*Index)

// WithMaxItems sets the item capacity. It overrides the value stored in an
// existing document.
func WithMaxItems(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.maxItems = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) {
		idx.now = now
	}
}

// Open loads the document at path. A missing file yields a fresh document;
// a malformed one is reported and replaced by a fresh document.
func Open(path string, enc *fingerprint.Encoder, opts ...Option) (*Index, error) {
	idx := &Index{
		path:    path,
		encoder: enc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}

	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = idx.newDocument()
	}
	if idx.maxItems > 0 {
		doc.MaxItems = idx.maxItems
	} else if doc.MaxItems <= 0 {
		doc.MaxItems = DefaultMaxItems
	}
	idx.maxItems = doc.MaxItems
	idx.doc = doc

	// A lowered capacity is applied on load so each insert evicts at most one
	if over := len(doc.Items) - doc.MaxItems; over > 0 {
		now := idx.now().UTC()
		for _, old := range doc.Items[:over] {
			audit(doc, now, ActionRemove, old.Text, old.ID, map[string]any{"reason": ReasonMaxItemsExceeded})
		}
		doc.Items = slices.Clone(doc.Items[over:])
		log.Info("Trimmed recent index to capacity", "path", path, "evicted", over, "max_items", doc.MaxItems)
	}

	log.Debug("Opened recent index", "path", path, "items", len(doc.Items), "max_items", doc.MaxItems)
	return idx, nil
}

// load reads a document. It returns nil, nil when the file is missing or
// unusable.
func load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recent index: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		log.Warn("Recent index file is empty, starting fresh", "path", path)
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn("Recent index file is malformed, starting fresh", "path", path, "error", err)
		return nil, nil
	}
	return &doc, nil
}

func (idx *Index) newDocument() *Document {
	now := idx.now().UTC()
	return &Document{
		Version:     DocumentVersion,
		MaxItems:    idx.maxItems,
		Items:       []Entry{},
		History:     []AuditEntry{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Path returns the document location.
func (idx *Index) Path() string {
	return idx.path
}

// MaxItems returns the item capacity.
func (idx *Index) MaxItems() int {
	return idx.maxItems
}

// Add encodes text and appends it to the index.
func (idx *Index) Add(text string, metadata map[string]any) (*Entry, error) {
	pair, _ := idx.encoder.Pair(text)
	return idx.Insert(text, pair, metadata)
}

// Insert appends an already encoded text. When the index is over capacity
// the oldest item is evicted and the eviction is audited.
func (idx *Index) Insert(text string, pair fingerprint.Pair, metadata map[string]any) (*Entry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := idx.now().UTC()
	entry := Entry{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		Text:        text,
		Fingerprint: pair.Round(idx.encoder.DecimalPlaces()),
		Metadata:    copyMetadata(metadata),
	}

	doc := idx.draft()
	doc.Items = append(doc.Items, entry)
	if len(doc.Items) > doc.MaxItems {
		oldest := doc.Items[0]
		doc.Items = doc.Items[1:]
		audit(doc, now, ActionRemove, oldest.Text, oldest.ID, map[string]any{"reason": ReasonMaxItemsExceeded})
		log.Debug("Evicted oldest recent entry", "id", oldest.ID)
	}
	audit(doc, now, ActionAdd, text, entry.ID, nil)

	if err := idx.commit(doc, now); err != nil {
		return nil, err
	}
	out := cloneEntry(entry)
	return &out, nil
}

// Remove deletes one entry by id.
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, e := range idx.doc.Items {
		if e.ID != id {
			continue
		}
		now := idx.now().UTC()
		doc := idx.draft()
		doc.Items = slices.Delete(doc.Items, i, i+1)
		audit(doc, now, ActionRemove, e.Text, e.ID, map[string]any{"reason": ReasonExplicit})
		return idx.commit(doc, now)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Lookup returns the entries whose text equals text, newest first, and
// audits the query.
func (idx *Index) Lookup(text string) ([]Entry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var found []Entry
	for i := len(idx.doc.Items) - 1; i >= 0; i-- {
		if idx.doc.Items[i].Text == text {
			found = append(found, cloneEntry(idx.doc.Items[i]))
		}
	}

	now := idx.now().UTC()
	doc := idx.draft()
	audit(doc, now, ActionQuery, text, "", map[string]any{"results": len(found)})
	if err := idx.commit(doc, now); err != nil {
		return nil, err
	}
	return found, nil
}

// List returns up to limit entries, most recent first. A non-positive limit
// returns every entry.
func (idx *Index) List(limit int) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := len(idx.doc.Items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, cloneEntry(idx.doc.Items[i]))
	}
	return out
}

// History returns up to limit audit entries, most recent first.
func (idx *Index) History(limit int) []AuditEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := len(idx.doc.History)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		a := idx.doc.History[i]
		a.Metadata = copyMetadata(a.Metadata)
		out = append(out, a)
	}
	return out
}

// Stats summarises the index.
func (idx *Index) Stats() Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	stats := Stats{
		Path:           idx.path,
		Items:          len(idx.doc.Items),
		MaxItems:       idx.doc.MaxItems,
		HistoryEntries: len(idx.doc.History),
		Actions:        make(map[Action]int),
		CreatedAt:      idx.doc.CreatedAt,
		LastUpdated:    idx.doc.LastUpdated,
	}
	for _, a := range idx.doc.History {
		stats.Actions[a.Action]++
	}
	if n := len(idx.doc.Items); n > 0 {
		oldest := idx.doc.Items[0].CreatedAt
		newest := idx.doc.Items[n-1].CreatedAt
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats
}

// Clear empties items and history, leaving a single clear entry.
func (idx *Index) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := idx.now().UTC()
	removed := len(idx.doc.Items)
	doc := idx.draft()
	doc.Items = []Entry{}
	doc.History = []AuditEntry{}
	audit(doc, now, ActionClear, "", "", map[string]any{"items": removed})

	if err := idx.commit(doc, now); err != nil {
		return err
	}
	log.Info("Cleared recent index", "path", idx.path, "items", removed)
	return nil
}

// audit appends to the history, keeping the newest HistoryCapacity entries.
func audit(doc *Document, at time.Time, action Action, text, relatedID string, metadata map[string]any) {
	doc.History = append(doc.History, AuditEntry{
		Timestamp: at,
		Action:    action,
		Text:      text,
		RelatedID: relatedID,
		Metadata:  metadata,
	})
	if over := len(doc.History) - HistoryCapacity; over > 0 {
		doc.History = slices.Clone(doc.History[over:])
	}
}

// draft returns a copy of the document for a mutation. Callers hold mu.
func (idx *Index) draft() *Document {
	doc := *idx.doc
	doc.Items = slices.Clone(idx.doc.Items)
	doc.History = slices.Clone(idx.doc.History)
	return &doc
}

// commit rewrites the whole document and adopts it only once the write
// succeeded. Callers hold mu.
func (idx *Index) commit(doc *Document, at time.Time) error {
	doc.Version = DocumentVersion
	doc.LastUpdated = at

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recent index: %w", err)
	}
	if err := fsutil.WriteFileAtomic(idx.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save recent index: %w", err)
	}
	idx.doc = doc
	return nil
}

func cloneEntry(e Entry) Entry {
	e.Metadata = copyMetadata(e.Metadata)
	return e
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
