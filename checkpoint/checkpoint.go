package checkpoint

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vulndb-mirror/utils"
)

const (
	FileName = "update.properties"

	pageKeySuffix      = ".last_success_page"
	timestampKeySuffix = ".last_success_timestamp"
	header             = "# Automatically generated from vulndb-mirror. Do not modify.\n"
)

// Checkpoint is the last page of a feed that was fully persisted.
type Checkpoint struct {
	Feed      string
	Page      int
	Timestamp time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps one checkpoint per feed in a properties file. It is read once
// when opened and rewritten in full on every Put.
type Store struct {
	fs    afero.Fs
	dir   string
	now   func() time.Time
	props *properties.Properties
}

func Open(fs afero.Fs, dir string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:    fs,
		dir:   dir,
		now:   time.Now,
		props: properties.NewProperties(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.props.DisableExpansion = true

	// leftovers of writes interrupted by a crash
	if err := utils.RemoveTempFiles(fs, dir); err != nil {
		return nil, xerrors.Errorf("unable to clean %s: %w", dir, err)
	}

	path := s.Path()
	b, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return s, nil
	} else if err != nil {
		return nil, xerrors.Errorf("unable to read %s: %w", path, err)
	}

	p, err := properties.Load(b, properties.UTF8)
	if err != nil {
		return nil, xerrors.Errorf("unable to parse %s: %w", path, err)
	}
	p.DisableExpansion = true

	// reject corrupt values up front rather than silently restarting a feed
	for _, key := range p.Keys() {
		v, _ := p.Get(key)
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || (strings.HasSuffix(key, pageKeySuffix) && n < 1) {
			return nil, xerrors.Errorf("invalid value %q for %s in %s", v, key, path)
		}
	}
	s.props = p
	return s, nil
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Get returns the last successful page of the feed, or 1 if there is none.
func (s *Store) Get(feed string) int {
	if c, ok := s.Checkpoint(feed); ok {
		return c.Page
	}
	return 1
}

func (s *Store) Checkpoint(feed string) (Checkpoint, bool) {
	v, ok := s.props.Get(feed + pageKeySuffix)
	if !ok {
		return Checkpoint{}, false
	}
	page, err := strconv.Atoi(v)
	if err != nil {
		return Checkpoint{}, false
	}

	c := Checkpoint{Feed: feed, Page: page}
	if ts, ok := s.props.Get(feed + timestampKeySuffix); ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			c.Timestamp = time.UnixMilli(ms)
		}
	}
	return c, true
}

// Put records page as completed for the feed and rewrites the store file.
// The in-memory state only changes once the file has been replaced.
func (s *Store) Put(feed string, page int) error {
	if page < 1 {
		return xerrors.Errorf("invalid page %d for %s", page, feed)
	}
	if c, ok := s.Checkpoint(feed); ok && page < c.Page {
		return xerrors.Errorf("checkpoint for %s cannot move back from page %d to %d", feed, c.Page, page)
	}

	next := s.props.FilterFunc(func(string, string) bool { return true })
	next.DisableExpansion = true
	if _, _, err := next.Set(feed+pageKeySuffix, strconv.Itoa(page)); err != nil {
		return xerrors.Errorf("unable to set page: %w", err)
	}
	if _, _, err := next.Set(feed+timestampKeySuffix, strconv.FormatInt(s.now().UnixMilli(), 10)); err != nil {
		return xerrors.Errorf("unable to set timestamp: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	if _, err := next.Write(&buf, properties.UTF8); err != nil {
		return xerrors.Errorf("unable to encode checkpoints: %w", err)
	}
	if err := utils.WriteFile(s.fs, s.dir, FileName, buf.Bytes()); err != nil {
		return xerrors.Errorf("failed to write %s: %w", s.Path(), err)
	}

	s.props = next
	return nil
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%s page %d at %s", c.Feed, c.Page, c.Timestamp.UTC().Format(time.RFC3339))
}
