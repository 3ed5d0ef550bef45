package vulndb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vulndb-mirror/checkpoint"
	"github.com/aquasecurity/vulndb-mirror/metrics"
	"github.com/aquasecurity/vulndb-mirror/utils"
)

// PageSize is the number of entries requested per page.
const PageSize = 100

type option func(*Updater)

func WithFs(fs afero.Fs) option {
	return func(u *Updater) { u.appFs = fs }
}

func WithOutputDir(dir string) option {
	return func(u *Updater) { u.dir = dir }
}

func WithLogger(l zerolog.Logger) option {
	return func(u *Updater) { u.logger = l }
}

func WithProgressWriter(w io.Writer) option {
	return func(u *Updater) { u.progress = w }
}

func WithMetrics(r *metrics.Recorder) option {
	return func(u *Updater) { u.metrics = r }
}

type Updater struct {
	client   *Client
	store    *checkpoint.Store
	appFs    afero.Fs
	dir      string
	logger   zerolog.Logger
	progress io.Writer
	metrics  *metrics.Recorder
}

func NewUpdater(client *Client, store *checkpoint.Store, opts ...option) *Updater {
	u := &Updater{
		client:   client,
		store:    store,
		appFs:    afero.NewOsFs(),
		dir:      utils.DefaultOutputDir(),
		logger:   zerolog.Nop(),
		progress: os.Stdout,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update mirrors the given feeds, or all of them when none is given.
// Feeds run in the order of AllFeeds and a failing feed does not stop the
// others. The returned error aggregates every failure of the run.
func (u *Updater) Update(ctx context.Context, feeds ...Feed) error {
	selected := AllFeeds
	if len(feeds) > 0 {
		selected = lo.Filter(AllFeeds, func(f Feed, _ int) bool {
			return lo.Contains(feeds, f)
		})
	}

	var errs error
	for _, feed := range selected {
		if err := u.mirrorFeed(ctx, feed); err != nil {
			u.logger.Error().Err(err).Str("feed", feed.String()).Msg("Feed failed")
			errs = multierror.Append(errs, xerrors.Errorf("%s: %w", feed, err))
		}
	}
	return errs
}

// mirrorFeed pages through a feed starting at its checkpoint. A fetch or parse
// error ends the feed. A persist or checkpoint error is recorded and the loop
// goes on, but the checkpoint is not advanced again for this feed so the next
// run starts over at the failed page.
func (u *Updater) mirrorFeed(ctx context.Context, feed Feed) error {
	name := feed.String()
	logger := u.logger.With().Str("feed", name).Logger()

	page := u.store.Get(name)
	logger.Info().Msgf("Mirroring %s from page %d", name, page)

	var (
		errs   error
		frozen bool
		bar    *pb.ProgressBar
	)
	defer func() {
		if bar != nil {
			bar.Finish()
		}
	}()

	for {
		p, err := u.client.FetchPage(ctx, feed, PageSize, page)
		if err != nil {
			u.metrics.PageFailed(name, "fetch")
			return multierror.Append(errs, xerrors.Errorf("failed to fetch page %d: %w", page, err))
		}
		u.metrics.PageFetched(name)

		bar = u.advanceBar(bar, p)

		if feed == Vulnerabilities {
			p = u.skipInvalidCvss(logger, p)
		}
		logger.Debug().Int("page", page).Int("total", p.TotalEntries).
			Int("entities", len(p.Entities)).Int("skipped", len(p.Skipped)).Msg("Fetched page")

		if err = u.persist(name, p); err != nil {
			u.metrics.PageFailed(name, "persist")
			logger.Error().Err(err).Int("page", page).Msg("Unable to persist page")
			errs = multierror.Append(errs, err)
			frozen = true
		} else {
			u.metrics.PagePersisted(name)
			if !frozen {
				if err = u.store.Put(name, page); err != nil {
					u.metrics.PageFailed(name, "checkpoint")
					logger.Error().Err(err).Int("page", page).Msg("Unable to save checkpoint")
					errs = multierror.Append(errs, xerrors.Errorf("failed to save checkpoint for page %d: %w", page, err))
					frozen = true
				} else {
					u.metrics.Checkpoint(name, page)
				}
			}
		}

		if page*PageSize >= p.TotalEntries {
			break
		}
		page++
	}

	logger.Info().Msgf("Finished %s at page %d", name, page)
	return errs
}

// MirrorVersions writes every page of the versions of a product to
// versions_<productID>_<page>.json. Versions are not checkpointed; the pass
// always starts at page 1.
func (u *Updater) MirrorVersions(ctx context.Context, productID int) error {
	prefix := fmt.Sprintf("versions_%d", productID)
	logger := u.logger.With().Int("product_id", productID).Logger()

	for page := 1; ; page++ {
		p, err := u.client.FetchVersions(ctx, productID, PageSize, page)
		if err != nil {
			u.metrics.PageFailed("versions", "fetch")
			return xerrors.Errorf("failed to fetch versions page %d of product %d: %w", page, productID, err)
		}
		u.metrics.PageFetched("versions")
		logger.Debug().Int("page", page).Int("total", p.TotalEntries).Msg("Fetched versions page")

		if err = u.persist(prefix, p); err != nil {
			u.metrics.PageFailed("versions", "persist")
			return err
		}
		u.metrics.PagePersisted("versions")

		if page*PageSize >= p.TotalEntries {
			logger.Info().Msgf("Mirrored %d versions of product %d", p.TotalEntries, productID)
			return nil
		}
	}
}

// advanceBar starts the bar on the first page. The total is refreshed on every
// page as the remote count may change during a run.
func (u *Updater) advanceBar(bar *pb.ProgressBar, p Page) *pb.ProgressBar {
	if bar == nil {
		bar = pb.New(p.TotalEntries).SetWriter(u.progress).Start()
	}
	bar.SetTotal(int64(p.TotalEntries))
	bar.SetCurrent(int64(min(p.Number*PageSize, p.TotalEntries)))
	return bar
}

// skipInvalidCvss drops vulnerabilities whose CVSS metrics cannot be
// normalized. The raw body is left untouched.
func (u *Updater) skipInvalidCvss(logger zerolog.Logger, p Page) Page {
	entities := make([]Entity, 0, len(p.Entities))
	for _, e := range p.Entities {
		v, ok := e.(Vulnerability)
		if !ok {
			entities = append(entities, e)
			continue
		}
		if _, _, err := v.NormalizedCvss(); err != nil {
			version := "unknown"
			var ue *UnknownCvssEnumValueError
			if errors.As(err, &ue) {
				version = ue.Version
			}
			u.metrics.CvssSkipped(version)
			logger.Warn().Err(err).Int("page", p.Number).Int("vulndb_id", v.ID).Msg("Skipping vulnerability")
			p.Skipped = append(p.Skipped, SkippedRecord{ID: v.ID, Err: err})
			continue
		}
		entities = append(entities, e)
	}
	p.Entities = entities
	return p
}

func (u *Updater) persist(feed string, p Page) error {
	name := fmt.Sprintf("%s_%d.json", feed, p.Number)
	if err := utils.WriteFile(u.appFs, u.dir, name, p.RawBody); err != nil {
		return &PersistError{Path: filepath.Join(u.dir, name), Err: err}
	}
	return nil
}
