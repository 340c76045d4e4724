// Package store persists chat documents as canonical JSON files, one file per
// conversation, named by ULID. The canonical form is byte-stable so saves can
// be skipped when nothing changed and on-disk diffs stay line-oriented.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"parley/internal/domain"
)

const fileExt = ".json"

// ChatInfo summarizes a persisted chat for listing.
type ChatInfo struct {
	ID        string
	Title     string
	Messages  int
	UpdatedAt time.Time
}

// Store reads and writes chat documents under a single directory. It tracks
// the last canonical form written per chat so repeated saves of an unchanged
// document perform no write and no timestamp bump. It is used only from the
// single interactive control-flow goroutine.
type Store struct {
	dir       string
	logger    *slog.Logger
	lastSaved map[string][]byte
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create chats dir: %w", err)
	}
	return &Store{dir: dir, logger: logger, lastSaved: make(map[string][]byte)}, nil
}

// NewID generates a ULID for a fresh chat.
func NewID() string {
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// Save writes the canonical form of doc if it differs from the last-known
// on-disk form. It reports whether a write happened. The UpdatedAt stamp is
// bumped only when content actually changed, so non-mutating commands never
// advance it.
func (s *Store) Save(id string, doc *domain.ChatDocument) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	canonical, err := Canonical(doc)
	if err != nil {
		return false, domain.WrapOp("store.Save", err)
	}

	last, ok := s.lastSaved[id]
	if !ok {
		// First save through this process for the chat; fall back to the file.
		if onDisk, err := os.ReadFile(s.path(id)); err == nil {
			last = onDisk
		}
	}
	if bytes.Equal(canonical, last) {
		return false, nil
	}

	doc.Metadata.UpdatedAt = time.Now().UTC()
	canonical, err = Canonical(doc)
	if err != nil {
		return false, domain.WrapOp("store.Save", err)
	}

	if err := writeAtomic(s.path(id), canonical); err != nil {
		return false, domain.WrapOp("store.Save", err)
	}
	s.lastSaved[id] = canonical
	s.logger.Debug("chat saved", "id", id, "bytes", len(canonical))
	return true, nil
}

// Load reads and validates the chat with the given id. Schema violations are
// reported as ErrSchema, distinct from any provider error; the document is
// never silently repaired.
func (s *Store) Load(id string) (*domain.ChatDocument, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewDomainError("store.Load", domain.ErrChatNotFound, id)
		}
		return nil, domain.WrapOp("store.Load", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.lastSaved[id] = data
	return doc, nil
}

// Parse decodes and validates a chat document. It is the single validating
// construction point: code past this boundary never re-checks shape.
func Parse(data []byte) (*domain.ChatDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc domain.ChatDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, domain.NewDomainError("store.Parse", domain.ErrSchema, err.Error())
	}

	for i, m := range doc.Messages {
		switch m.Role {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleError:
		default:
			return nil, domain.NewDomainError("store.Parse", domain.ErrSchema,
				fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
		if m.Content == nil {
			return nil, domain.NewDomainError("store.Parse", domain.ErrSchema,
				fmt.Sprintf("message %d has no content array", i))
		}
		if m.Role != domain.RoleAssistant && m.Model != "" {
			return nil, domain.NewDomainError("store.Parse", domain.ErrSchema,
				fmt.Sprintf("message %d: model is only valid on assistant messages", i))
		}
	}
	return &doc, nil
}

// Canonical renders the document in its canonical persisted form: two-space
// indented JSON, stable field order, trailing newline, UTF-8 without BOM.
func Canonical(doc *domain.ChatDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// List returns all persisted chats, most recently updated first.
func (s *Store) List() ([]ChatInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, domain.WrapOp("store.List", err)
	}

	var infos []ChatInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		doc, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable chat file", "file", name, "error", err)
			continue
		}
		infos = append(infos, ChatInfo{
			ID:        id,
			Title:     doc.Metadata.Title,
			Messages:  len(doc.Messages),
			UpdatedAt: doc.Metadata.UpdatedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos, nil
}

// Resolve expands an id prefix to the unique matching chat id.
func (s *Store) Resolve(prefix string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", domain.WrapOp("store.Resolve", err)
	}

	var matches []string
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), fileExt)
		if strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return "", domain.NewDomainError("store.Resolve", domain.ErrChatNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", domain.NewDomainError("store.Resolve", domain.ErrChatNotFound,
			fmt.Sprintf("prefix %q is ambiguous (%d matches)", prefix, len(matches)))
	}
}

// Delete removes a persisted chat.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return domain.NewDomainError("store.Delete", domain.ErrChatNotFound, id)
		}
		return domain.WrapOp("store.Delete", err)
	}
	delete(s.lastSaved, id)
	return nil
}

// Forget drops the cached canonical form for a chat, e.g. when it is closed.
func (s *Store) Forget(id string) {
	delete(s.lastSaved, id)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// validateID rejects ids that could escape the chats directory.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return domain.NewDomainError("store", domain.ErrChatNotFound, fmt.Sprintf("invalid chat id %q", id))
	}
	return nil
}

// writeAtomic writes data via a temp file + rename so a crash never leaves a
// half-written chat behind.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
