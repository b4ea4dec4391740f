package syncstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/meta"
	"github.com/roach88/docsync/internal/notify"
	"github.com/roach88/docsync/internal/projection"
	"github.com/roach88/docsync/internal/remote"
	"github.com/roach88/docsync/internal/replicate"
)

// Store is the facade over one logical document store.
//
// Lifecycle: New validates configuration, Initialize opens the databases
// and starts the watchers, Deinitialize stops them and closes everything
// Initialize opened. A Store is not reusable after Deinitialize.
type Store struct {
	opts    Options
	logger  *slog.Logger
	clock   doc.Clock
	ids     doc.IDGenerator
	opener  docstore.Opener
	echoTTL time.Duration

	drainTimeout time.Duration

	subs *notify.Manager
	proj *projection.Projector

	// lifecycle
	mu         sync.Mutex
	state      state
	cancel     context.CancelFunc
	local      docstore.Database
	metaDB     docstore.Database
	remote     docstore.Database
	ownsRemote bool
	meta       atomic.Pointer[meta.Channel]
	localFeed  *docstore.Feed
	localDone  chan struct{}
	pull       *replicate.Replication
	debouncers map[*notify.Debouncer]struct{}

	// echoes holds the pulled id/revision pairs the local watcher should
	// recognise as remote-origin.
	echoes *ttlcache.Cache[string, struct{}]

	// pushedSeq is the highest local sequence known to be uploaded.
	pushedSeq atomic.Int64
	// handledSeq is the last local sequence the local watcher finished.
	handledSeq atomic.Int64

	uploadMu sync.Mutex
}

type state int

const (
	stateNew state = iota
	stateStarting
	stateRunning
	stateClosed
)

// New validates opts and returns an uninitialized Store.
func New(opts Options, options ...Option) (*Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		opts:         opts,
		logger:       slog.Default(),
		clock:        doc.SystemClock{},
		ids:          doc.UUIDv7Generator{},
		echoTTL:      DefaultEchoTTL,
		drainTimeout: DefaultDrainTimeout,
		debouncers:   make(map[*notify.Debouncer]struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With("store", opts.Name)
	s.opts.Remote = opts.Remote.withDefaults()

	if s.opener == nil {
		opener, err := docstore.NewOpener(opts.Engine, opts.Dir, s.logger)
		if err != nil {
			return nil, &Error{Code: CodeNotConfigured, Op: "configure", Err: err}
		}
		s.opener = opener
	}

	s.subs = notify.NewManager(s.logger)
	if !opts.Projection.Disabled {
		s.proj = projection.New(projection.Options{
			SingletonID: opts.Projection.SingletonID,
			Compare:     opts.Projection.Compare,
			Filter:      opts.Projection.Filter,
		})
	}
	return s, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.opts.Name
}

// RemoteEnabled reports whether remote sync is configured.
func (s *Store) RemoteEnabled() bool {
	return s.opts.Remote.Enabled
}

// Initialize opens the local and meta databases, loads or creates the meta
// record, pulls from the remote when enabled, seeds the projection and
// starts the local, meta and remote watchers.
//
// An unreachable remote is logged and the store continues local-only.
// Initialize must not run concurrently with Deinitialize.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateRunning:
		s.mu.Unlock()
		return nil
	case stateStarting:
		s.mu.Unlock()
		return errors.New("initialize: already in progress")
	case stateClosed:
		s.mu.Unlock()
		return errors.New("initialize: store already deinitialized")
	}
	s.state = stateStarting
	s.mu.Unlock()

	err := s.start(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = stateClosed
	} else {
		s.state = stateRunning
	}
	s.mu.Unlock()

	if err != nil {
		s.teardown()
		return err
	}
	return nil
}

func (s *Store) start(ctx context.Context) error {
	var err error
	if s.local, err = s.opener(s.opts.Name); err != nil {
		return fmt.Errorf("open local database: %w", err)
	}
	if s.metaDB, err = s.opener(meta.CollectionPrefix + s.opts.Name); err != nil {
		return fmt.Errorf("open meta database: %w", err)
	}

	ch := meta.NewChannel(s.metaDB, s.logger)
	s.meta.Store(ch)
	rec, err := ch.Init(ctx, s.newClientID)
	if err != nil {
		return err
	}
	s.logger.Debug("meta record ready", "client_id", rec.ClientID, "unuploaded", len(rec.Unuploadeds))

	s.echoes = ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](s.echoTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go s.echoes.Start()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.opts.Remote.Enabled {
		if err := s.openRemote(); err != nil {
			return err
		}
		if err := s.catchUp(ctx); err != nil {
			s.logger.Warn("remote catch-up failed, continuing local-only", "error", err)
		}
	}

	info, err := s.local.Info(ctx)
	if err != nil {
		return fmt.Errorf("read local info: %w", err)
	}
	if s.proj != nil {
		docs, err := s.local.AllDocuments(ctx)
		if err != nil {
			return fmt.Errorf("load documents: %w", err)
		}
		s.proj.Seed(docs)
	}

	if err := ch.Watch(runCtx, s.onMetaUpdate); err != nil {
		return err
	}
	if err := s.watchLocal(runCtx, info.UpdateSeq); err != nil {
		return err
	}
	if s.remote != nil {
		s.watchRemote(runCtx)
	}

	s.logger.Info("store initialized", "remote", s.remote != nil, "documents", info.DocCount)
	return nil
}

func (s *Store) newClientID() string {
	if s.opts.ClientID != "" {
		return s.opts.ClientID
	}
	return doc.NewID()
}

func (s *Store) openRemote() error {
	if s.opts.Remote.Database != nil {
		s.remote = s.opts.Remote.Database
		return nil
	}
	c, err := remote.NewClient(s.opts.Remote.URL, s.opts.Name,
		remote.WithHTTPClient(s.opts.Remote.HTTPClient),
		remote.WithClientLogger(s.logger),
		remote.WithProbeTimeout(s.opts.Remote.Timeout),
	)
	if err != nil {
		return &Error{Code: CodeNotConfigured, Op: "configure", Err: err}
	}
	s.remote = c
	s.ownsRemote = true
	return nil
}

// Deinitialize stops every watcher and closes the databases. Callbacks
// already running finish; none start after Deinitialize returns. Safe to
// call more than once.
func (s *Store) Deinitialize() error {
	s.mu.Lock()
	switch s.state {
	case stateClosed:
		s.mu.Unlock()
		return nil
	case stateStarting:
		s.mu.Unlock()
		return errors.New("deinitialize: initialize in progress")
	}
	s.state = stateClosed
	debs := slices.Collect(maps.Keys(s.debouncers))
	clear(s.debouncers)
	s.mu.Unlock()

	for _, d := range debs {
		d.Stop()
		d.Wait()
	}
	s.drainLocal(s.drainTimeout)
	err := s.teardown()
	s.logger.Info("store deinitialized")
	return err
}

// teardown releases whatever start got as far as opening. The caller has
// already moved the store out of the running state.
func (s *Store) teardown() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.pull != nil {
		s.pull.Cancel()
	}
	if s.localFeed != nil {
		s.localFeed.Close()
		<-s.localDone
	}
	if ch := s.meta.Load(); ch != nil {
		ch.Close()
	}
	if s.echoes != nil {
		s.echoes.Stop()
	}

	var errs []error
	if s.remote != nil && s.ownsRemote {
		errs = append(errs, s.remote.Close())
	}
	if s.local != nil {
		errs = append(errs, s.local.Close())
	}
	if s.metaDB != nil {
		errs = append(errs, s.metaDB.Close())
	}
	return errors.Join(errs...)
}

// db returns the local database, or ErrNotInitialized.
func (s *Store) db() (docstore.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return nil, ErrNotInitialized
	}
	return s.local, nil
}

// handles returns the local and remote databases and the meta channel.
// remote is nil in local-only mode.
func (s *Store) handles() (local, rem docstore.Database, ch *meta.Channel, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return nil, nil, nil, ErrNotInitialized
	}
	return s.local, s.remote, s.meta.Load(), nil
}

// Meta returns a copy of the current meta record.
func (s *Store) Meta() meta.Record {
	ch := s.meta.Load()
	if ch == nil {
		return meta.Record{}
	}
	return ch.Record()
}

func (s *Store) onMetaUpdate(rec meta.Record) {
	s.logger.Debug("meta record updated externally", "unuploaded", len(rec.Unuploadeds))
	s.subs.Notify(notify.Event{Kind: notify.KindMeta})
}
