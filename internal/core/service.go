package core

import (
	"context"
	"time"

	"archivecore/internal/adapters/fanout"
	"archivecore/internal/index"
	"archivecore/internal/notify"
	"archivecore/internal/storage"
	"archivecore/internal/workflow"
	"archivecore/pkg/domain"
)

// Request identifies the caller of a publication command. WorkflowInvocationID
// is set when the command is driven by a workflow run, so the validator can
// match the run against an installed Workflow lock.
type Request struct {
	User                 domain.User
	WorkflowInvocationID string
}

// Service drives datasets through the two-phase archival process. All
// mutations go through the persistent store's transactions; the kick-off and
// finalize phases never share one.
type Service struct {
	store     domain.PersistentStore
	workflows workflow.Engine
	index     index.Service
	notify    notify.Service
	storage   *storage.Registry
	dispatch  *fanout.Worker
	settings  Settings
	log       Logger
	metrics   MetricsRecorder
	nowFn     func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

// WithWorkflows installs the workflow engine queried at kick-off.
func WithWorkflows(engine workflow.Engine) Option {
	return func(s *Service) { s.workflows = engine }
}

// WithIndex installs the search-index fan-out target.
func WithIndex(svc index.Service) Option {
	return func(s *Service) { s.index = svc }
}

// WithNotifier installs the notification transport.
func WithNotifier(svc notify.Service) Option {
	return func(s *Service) { s.notify = svc }
}

// WithStorage installs the storage driver registry used by the checksum
// validator.
func WithStorage(reg *storage.Registry) Option {
	return func(s *Service) { s.storage = reg }
}

// WithDispatcher installs the worker that runs finalize asynchronously after
// a Branch-B kick-off commits. Without one, kick-off returns with the
// finalize lock in place and the caller drives FinalizeArchive itself.
func WithDispatcher(w *fanout.Worker) Option {
	return func(s *Service) { s.dispatch = w }
}

// WithSettings overrides the default settings.
func WithSettings(settings Settings) Option {
	return func(s *Service) { s.settings = settings }
}

// WithLogger installs a structured logger.
func WithLogger(log Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithNowFunc overrides the command clock. Intended for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		settings: DefaultSettings(),
		log:      nopLogger{},
		metrics:  nopMetrics{},
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Settings returns the settings the service was built with.
func (s *Service) Settings() Settings { return s.settings }

func (s *Service) now() time.Time { return s.nowFn().UTC() }

func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
}

// CreateDataverse persists a new dataverse container.
func (s *Service) CreateDataverse(ctx context.Context, dv domain.Dataverse) (domain.Dataverse, error) {
	var created domain.Dataverse
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateDataverse(dv)
		return err
	})
	return created, err
}

// CreateDataset persists a new dataset aggregate.
func (s *Service) CreateDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	var created domain.Dataset
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateDataset(d)
		return err
	})
	return created, err
}

// GetDataset loads a dataset by id.
func (s *Service) GetDataset(id string) (domain.Dataset, bool) {
	return s.store.GetDataset(id)
}

// GetDataverse loads a dataverse by id.
func (s *Service) GetDataverse(id string) (domain.Dataverse, bool) {
	return s.store.GetDataverse(id)
}

// ListDatasets returns all datasets.
func (s *Service) ListDatasets() []domain.Dataset {
	return s.store.ListDatasets()
}

// ListDataverses returns all dataverses.
func (s *Service) ListDataverses() []domain.Dataverse {
	return s.store.ListDataverses()
}
