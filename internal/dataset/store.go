// Package dataset stores uploaded tables as Parquet files under a single
// directory. Names are validated before they touch the filesystem, so the
// store never reads or writes outside its directory.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/frame"
	"github.com/makolabs/mako/internal/model"
)

// nameRe accepts the dataset names the UI can create: no separators, no
// leading dot, nothing the filesystem could interpret.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_ .-]*$`)

// Page is one row window of a dataset.
type Page struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
}

// Store manages Parquet datasets and their markdown context notes in dir.
type Store struct {
	dir string
}

// NewStore creates dir if needed and returns a store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

func checkName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "dataset name is required")
	}
	if !nameRe.MatchString(name) || strings.Contains(name, "..") {
		return apperror.ValidationFailed("name", fmt.Sprintf("invalid dataset name %q", name))
	}
	return nil
}

func (s *Store) parquetPath(name string) string {
	return filepath.Join(s.dir, name+".parquet")
}

func (s *Store) contextPath(name string) string {
	return filepath.Join(s.dir, name+".md")
}

// List returns every stored dataset sorted by name.
func (s *Store) List() ([]model.Dataset, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	sort.Strings(matches)
	datasets := make([]model.Dataset, 0, len(matches))
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			// Racing deletes are fine; skip what vanished.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("listing datasets: %w", err)
		}
		base := filepath.Base(path)
		datasets = append(datasets, model.Dataset{
			Name:     strings.TrimSuffix(base, ".parquet"),
			Path:     base,
			Size:     st.Size(),
			Modified: st.ModTime().UTC(),
		})
	}
	return datasets, nil
}

// Names returns the stored dataset names sorted. It backs the sandbox's
// datasets.names().
func (s *Store) Names() ([]string, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, ds := range infos {
		names[i] = ds.Name
	}
	return names, nil
}

// Exists reports whether a dataset with the given name is stored.
func (s *Store) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	_, err := os.Stat(s.parquetPath(name))
	return err == nil
}

// Import converts an uploaded file to Parquet and stores it under name.
// The format is picked from the upload's file extension (.csv, .json,
// .parquet). Returns the stored record and whether an existing dataset was
// replaced.
func (s *Store) Import(name, filename string, r io.Reader) (model.Dataset, bool, error) {
	if err := checkName(name); err != nil {
		return model.Dataset{}, false, err
	}

	var (
		f   *frame.Frame
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		f, err = frame.ReadCSV(r)
	case ".json":
		f, err = frame.ReadJSON(r)
	case ".parquet":
		var raw []byte
		raw, err = io.ReadAll(r)
		if err == nil {
			f, err = frame.Read(bytes.NewReader(raw), int64(len(raw)))
		}
	default:
		return model.Dataset{}, false, apperror.ValidationFailed("file", fmt.Sprintf("unsupported file type %q", ext))
	}
	if err != nil {
		return model.Dataset{}, false, apperror.ValidationFailed("file", err.Error())
	}

	replaced := s.Exists(name)
	if err := s.write(name, f); err != nil {
		return model.Dataset{}, false, err
	}
	st, err := os.Stat(s.parquetPath(name))
	if err != nil {
		return model.Dataset{}, false, fmt.Errorf("stat imported dataset: %w", err)
	}
	ds := model.Dataset{
		Name:     name,
		Path:     name + ".parquet",
		Size:     st.Size(),
		Modified: st.ModTime().UTC(),
	}
	return ds, replaced, nil
}

// write lands the frame atomically: encode to a temp file in the same
// directory, then rename over the target.
func (s *Store) write(name string, f *frame.Frame) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("writing dataset %q: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := frame.Write(tmp, f); err != nil {
		tmp.Close()
		return fmt.Errorf("writing dataset %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing dataset %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.parquetPath(name)); err != nil {
		return fmt.Errorf("writing dataset %q: %w", name, err)
	}
	return nil
}

// Delete removes the dataset and its context note if present.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.parquetPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperror.NotFound("dataset", name)
		}
		return fmt.Errorf("deleting dataset %q: %w", name, err)
	}
	if err := os.Remove(s.contextPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting dataset context %q: %w", name, err)
	}
	return nil
}

// Load reads the named dataset. It backs the sandbox's datasets.load().
func (s *Store) Load(name string) (*frame.Frame, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f, err := frame.ReadFile(s.parquetPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperror.NotFound("dataset", name)
		}
		return nil, fmt.Errorf("loading dataset %q: %w", name, err)
	}
	return f, nil
}

// Save stores the frame under name, replacing any existing dataset. It
// backs the sandbox's datasets.save() and SQL cell save_as directives.
func (s *Store) Save(name string, f *frame.Frame) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.write(name, f)
}

// Schema returns the column names and types of the named dataset.
func (s *Store) Schema(name string) ([]frame.FieldSchema, error) {
	f, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return f.Schema(), nil
}

// Page returns rows [offset, offset+limit) of the named dataset.
func (s *Store) Page(name string, offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, apperror.ValidationFailed("offset", "offset must not be negative")
	}
	if limit <= 0 {
		return nil, apperror.ValidationFailed("limit", "limit must be positive")
	}
	f, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	window := f.Slice(offset, offset+limit)
	return &Page{
		Columns:   f.ColumnNames(),
		Rows:      window.Rows(),
		TotalRows: f.NumRows(),
	}, nil
}

// SaveContext stores the markdown note for a dataset. The dataset must
// exist; notes never outlive their data.
func (s *Store) SaveContext(name, content string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if !s.Exists(name) {
		return apperror.NotFound("dataset", name)
	}
	if err := os.WriteFile(s.contextPath(name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("saving context for %q: %w", name, err)
	}
	return nil
}

// Context returns the markdown note for a dataset and whether one exists.
func (s *Store) Context(name string) (string, bool, error) {
	if err := checkName(name); err != nil {
		return "", false, err
	}
	raw, err := os.ReadFile(s.contextPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading context for %q: %w", name, err)
	}
	return string(raw), true, nil
}
