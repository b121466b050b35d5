// Package jobregistry persists application records on local disk.
//
// Each record is the flat field set of an application written as indented
// JSON. Writes are atomic (temp file + rename) so concurrent readers never
// see a partial record.
package jobregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/3leaps/streamctl/pkg/application"
)

var (
	// ErrNotFound indicates no record exists for an id.
	ErrNotFound = errors.New("application not found")

	// ErrInvalidID indicates an id that cannot be used as a record key.
	ErrInvalidID = errors.New("invalid application id")
)

// Registry is the persistence contract shared by the on-disk Store and the
// SQL-backed store in package appstore.
type Registry interface {
	Write(ctx context.Context, app *application.Application) error
	Get(ctx context.Context, id string) (*application.Application, error)
	Delete(ctx context.Context, id string) error

	// List returns loadable records newest first, plus the ids of records
	// that could not be loaded.
	List(ctx context.Context) ([]*application.Application, []string, error)
}

var _ Registry = (*Store)(nil)

// Store persists and loads applications from an on-disk directory.
//
// Directory layout:
//
//	<root>/<id>/app.json
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) AppDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) AppPath(id string) string {
	return filepath.Join(s.AppDir(id), "app.json")
}

func (s *Store) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0o755)
}

// ValidID trims id and rejects values unusable as a record key.
func ValidID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

// Write persists the application's field set, replacing any previous one.
func (s *Store) Write(ctx context.Context, app *application.Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("application is nil")
	}
	id, err := ValidID(app.ID)
	if err != nil {
		return err
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	dir := s.AppDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create app dir: %w", err)
	}

	f := app.Fields()
	f.ID = id
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "app.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp app file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp app file: %w", err)
	}
	if err := os.Rename(tmpName, s.AppPath(id)); err != nil {
		return fmt.Errorf("rename app file: %w", err)
	}
	return nil
}

// Get loads one application. Unknown enum codes in the stored record are
// reported, not defaulted.
func (s *Store) Get(ctx context.Context, id string) (*application.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := ValidID(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.AppPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("%s: app.json is empty", id)
	}

	var f application.Fields
	if err := json.Unmarshal([]byte(trimmed), &f); err != nil {
		return nil, fmt.Errorf("parse app.json: %w", err)
	}
	return application.FromFields(f)
}

// Delete removes an application and its directory.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := ValidID(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(s.AppPath(id)); os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return os.RemoveAll(s.AppDir(id))
}

// List returns all readable applications, most recently modified first.
// Records that fail to load are skipped; skipped ids are returned alongside.
func (s *Store) List(ctx context.Context) ([]*application.Application, []string, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, nil, fmt.Errorf("read registry root: %w", err)
	}

	out := make([]*application.Application, 0, len(entries))
	var skipped []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		app, err := s.Get(ctx, entry.Name())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			skipped = append(skipped, entry.Name())
			continue
		}
		out = append(out, app)
	}

	SortNewestFirst(out)
	return out, skipped, nil
}

// SortNewestFirst orders records by modify time (create time when unset),
// newest first, ties broken by id.
func SortNewestFirst(apps []*application.Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		ti, tj := sortTime(apps[i]), sortTime(apps[j])
		if ti.Equal(tj) {
			return apps[i].ID < apps[j].ID
		}
		return ti.After(tj)
	})
}

func sortTime(app *application.Application) time.Time {
	if !app.ModifyTime.IsZero() {
		return app.ModifyTime.UTC()
	}
	return app.CreateTime.UTC()
}
