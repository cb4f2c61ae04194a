// Package memory provides the in-memory transactional store for the
// publication domain. Durable backends (sqlite, postgres) reuse it for
// transaction semantics and snapshot the state after each commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"archivecore/pkg/domain"

	"github.com/google/uuid"
)

// Snapshot is the serializable form of the full store state.
type Snapshot struct {
	Dataverses   []domain.Dataverse          `json:"dataverses"`
	Datasets     []domain.Dataset            `json:"datasets"`
	VersionUsers []domain.DatasetVersionUser `json:"version_users"`
	FailureLog   []domain.FailureLogEntry    `json:"failure_log"`
}

type memoryState struct {
	dataverses   map[string]domain.Dataverse
	datasets     map[string]domain.Dataset
	versionUsers map[string]domain.DatasetVersionUser
	failures     []domain.FailureLogEntry
}

func newMemoryState() memoryState {
	return memoryState{
		dataverses:   make(map[string]domain.Dataverse),
		datasets:     make(map[string]domain.Dataset),
		versionUsers: make(map[string]domain.DatasetVersionUser),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.dataverses {
		cloned.dataverses[k] = cloneDataverse(v)
	}
	for k, v := range s.datasets {
		cloned.datasets[k] = cloneDataset(v)
	}
	for k, v := range s.versionUsers {
		cloned.versionUsers[k] = v
	}
	cloned.failures = append([]domain.FailureLogEntry(nil), s.failures...)
	return cloned
}

func cloneDataverse(dv domain.Dataverse) domain.Dataverse {
	cp := dv
	cp.Subjects = append([]string(nil), dv.Subjects...)
	if dv.PublicationDate != nil {
		t := *dv.PublicationDate
		cp.PublicationDate = &t
	}
	return cp
}

func cloneDataset(d domain.Dataset) domain.Dataset {
	cp := d
	cp.PublicationDate = cloneTime(d.PublicationDate)
	cp.EmbargoCitationDate = cloneTime(d.EmbargoCitationDate)
	cp.Versions = make([]domain.DatasetVersion, len(d.Versions))
	for i, v := range d.Versions {
		cp.Versions[i] = cloneVersion(v)
	}
	cp.Files = make([]domain.DataFile, len(d.Files))
	for i, f := range d.Files {
		cp.Files[i] = cloneFile(f)
	}
	cp.Locks = append([]domain.DatasetLock(nil), d.Locks...)
	cp.RoleAssignments = make([]domain.RoleAssignment, len(d.RoleAssignments))
	for i, ra := range d.RoleAssignments {
		cp.RoleAssignments[i] = ra
		cp.RoleAssignments[i].Permissions = append([]domain.Permission(nil), ra.Permissions...)
	}
	return cp
}

func cloneVersion(v domain.DatasetVersion) domain.DatasetVersion {
	cp := v
	cp.ReleaseTime = cloneTime(v.ReleaseTime)
	if v.Terms != nil {
		terms := *v.Terms
		if v.Terms.License != nil {
			lic := *v.Terms.License
			terms.License = &lic
		}
		cp.Terms = &terms
	}
	cp.Fields = make([]domain.DatasetField, len(v.Fields))
	for i, f := range v.Fields {
		cp.Fields[i] = f
		cp.Fields[i].Values = append([]string(nil), f.Values...)
		cp.Fields[i].VocabularyValues = append([]string(nil), f.VocabularyValues...)
	}
	return cp
}

func cloneFile(f domain.DataFile) domain.DataFile {
	cp := f
	cp.PublicationDate = cloneTime(f.PublicationDate)
	if f.Embargo != nil {
		e := *f.Embargo
		cp.Embargo = &e
	}
	if f.Metadata != nil {
		m := *f.Metadata
		cp.Metadata = &m
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Store provides an in-memory transactional store for the publication domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// RulesEngine returns the engine evaluated on every transaction.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// SetNowFunc overrides the clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for _, dv := range snapshot.Dataverses {
		state.dataverses[dv.ID] = cloneDataverse(dv)
	}
	for _, d := range snapshot.Datasets {
		state.datasets[d.ID] = cloneDataset(d)
	}
	for _, vu := range snapshot.VersionUsers {
		state.versionUsers[versionUserKey(vu.VersionID, vu.UserID)] = vu
	}
	state.failures = append([]domain.FailureLogEntry(nil), snapshot.FailureLog...)
	s.state = state
}

func snapshotFromState(state memoryState) Snapshot {
	var snapshot Snapshot
	for _, dv := range state.dataverses {
		snapshot.Dataverses = append(snapshot.Dataverses, cloneDataverse(dv))
	}
	sort.Slice(snapshot.Dataverses, func(i, j int) bool {
		return snapshot.Dataverses[i].ID < snapshot.Dataverses[j].ID
	})
	for _, d := range state.datasets {
		snapshot.Datasets = append(snapshot.Datasets, cloneDataset(d))
	}
	sort.Slice(snapshot.Datasets, func(i, j int) bool {
		return snapshot.Datasets[i].ID < snapshot.Datasets[j].ID
	})
	for _, vu := range state.versionUsers {
		snapshot.VersionUsers = append(snapshot.VersionUsers, vu)
	}
	sort.Slice(snapshot.VersionUsers, func(i, j int) bool {
		a, b := snapshot.VersionUsers[i], snapshot.VersionUsers[j]
		return versionUserKey(a.VersionID, a.UserID) < versionUserKey(b.VersionID, b.UserID)
	})
	snapshot.FailureLog = append([]domain.FailureLogEntry(nil), state.failures...)
	return snapshot
}

func versionUserKey(versionID, userID string) string {
	return versionID + "|" + userID
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no registered
// rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View runs fn against a read-only snapshot of the current state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	state := s.state.clone()
	s.mu.RUnlock()
	return fn(newView(&state))
}

// GetDataset returns a cloned dataset by id.
func (s *Store) GetDataset(id string) (domain.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.datasets[id]
	if !ok {
		return domain.Dataset{}, false
	}
	return cloneDataset(d), true
}

// ListDatasets returns all datasets ordered by id.
func (s *Store) ListDatasets() []domain.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Dataset, 0, len(s.state.datasets))
	for _, d := range s.state.datasets {
		out = append(out, cloneDataset(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDataverse returns a cloned dataverse by id.
func (s *Store) GetDataverse(id string) (domain.Dataverse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dv, ok := s.state.dataverses[id]
	if !ok {
		return domain.Dataverse{}, false
	}
	return cloneDataverse(dv), true
}

// ListDataverses returns all dataverses ordered by id.
func (s *Store) ListDataverses() []domain.Dataverse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Dataverse, 0, len(s.state.dataverses))
	for _, dv := range s.state.dataverses {
		out = append(out, cloneDataverse(dv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindVersionUser returns the contribution record for a version/user pair.
func (s *Store) FindVersionUser(versionID, userID string) (domain.DatasetVersionUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vu, ok := s.state.versionUsers[versionUserKey(versionID, userID)]
	return vu, ok
}

// FailureLog returns the persisted post-commit failure entries for a dataset.
func (s *Store) FailureLog(datasetID string) []domain.FailureLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.FailureLogEntry
	for _, e := range s.state.failures {
		if e.DatasetID == datasetID {
			out = append(out, e)
		}
	}
	return out
}

type transaction struct {
	state   memoryState
	now     time.Time
	changes []domain.Change
}

func (t *transaction) record(entity domain.EntityType, action domain.Action, before, after any) {
	t.changes = append(t.changes, domain.Change{Entity: entity, Action: action, Before: before, After: after})
}

// Snapshot returns a read-only view of the transactional state.
func (t *transaction) Snapshot() domain.TransactionView {
	return newView(&t.state)
}

func (t *transaction) CreateDataverse(dv domain.Dataverse) (domain.Dataverse, error) {
	if dv.ID == "" {
		dv.ID = uuid.NewString()
	}
	if _, exists := t.state.dataverses[dv.ID]; exists {
		return domain.Dataverse{}, fmt.Errorf("dataverse %q already exists", dv.ID)
	}
	t.state.dataverses[dv.ID] = cloneDataverse(dv)
	t.record(domain.EntityDataverse, domain.ActionCreate, nil, dv)
	return cloneDataverse(dv), nil
}

func (t *transaction) UpdateDataverse(id string, mutator func(*domain.Dataverse) error) (domain.Dataverse, error) {
	current, ok := t.state.dataverses[id]
	if !ok {
		return domain.Dataverse{}, fmt.Errorf("dataverse %q not found", id)
	}
	before := cloneDataverse(current)
	updated := cloneDataverse(current)
	if err := mutator(&updated); err != nil {
		return domain.Dataverse{}, err
	}
	updated.ID = id
	t.state.dataverses[id] = cloneDataverse(updated)
	t.record(domain.EntityDataverse, domain.ActionUpdate, before, updated)
	return updated, nil
}

func (t *transaction) CreateDataset(d domain.Dataset) (domain.Dataset, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, exists := t.state.datasets[d.ID]; exists {
		return domain.Dataset{}, fmt.Errorf("dataset %q already exists", d.ID)
	}
	if d.OwnerID != "" {
		if _, ok := t.state.dataverses[d.OwnerID]; !ok {
			return domain.Dataset{}, fmt.Errorf("dataverse %q not found", d.OwnerID)
		}
	}
	if d.ModificationTime.IsZero() {
		d.ModificationTime = t.now
	}
	t.state.datasets[d.ID] = cloneDataset(d)
	t.record(domain.EntityDataset, domain.ActionCreate, nil, d)
	return cloneDataset(d), nil
}

func (t *transaction) UpdateDataset(id string, mutator func(*domain.Dataset) error) (domain.Dataset, error) {
	current, ok := t.state.datasets[id]
	if !ok {
		return domain.Dataset{}, fmt.Errorf("dataset %q not found", id)
	}
	before := cloneDataset(current)
	updated := cloneDataset(current)
	if err := mutator(&updated); err != nil {
		return domain.Dataset{}, err
	}
	updated.ID = id
	t.state.datasets[id] = cloneDataset(updated)
	t.record(domain.EntityDataset, domain.ActionUpdate, before, updated)
	return updated, nil
}

func (t *transaction) DeleteDataset(id string) error {
	current, ok := t.state.datasets[id]
	if !ok {
		return fmt.Errorf("dataset %q not found", id)
	}
	delete(t.state.datasets, id)
	t.record(domain.EntityDataset, domain.ActionDelete, current, nil)
	return nil
}

func (t *transaction) AddDatasetLock(datasetID string, lock domain.DatasetLock) (domain.DatasetLock, error) {
	current, ok := t.state.datasets[datasetID]
	if !ok {
		return domain.DatasetLock{}, fmt.Errorf("dataset %q not found", datasetID)
	}
	if current.IsLockedFor(lock.Reason) {
		return domain.DatasetLock{}, fmt.Errorf("dataset %q already locked for %s", datasetID, lock.Reason)
	}
	if lock.ID == "" {
		lock.ID = uuid.NewString()
	}
	lock.DatasetID = datasetID
	if lock.CreatedAt.IsZero() {
		lock.CreatedAt = t.now
	}
	updated := cloneDataset(current)
	updated.Locks = append(updated.Locks, lock)
	t.state.datasets[datasetID] = updated
	t.record(domain.EntityDatasetLock, domain.ActionCreate, nil, lock)
	return lock, nil
}

func (t *transaction) RemoveDatasetLocks(datasetID string, reason domain.LockReason) (int, error) {
	current, ok := t.state.datasets[datasetID]
	if !ok {
		return 0, fmt.Errorf("dataset %q not found", datasetID)
	}
	updated := cloneDataset(current)
	kept := updated.Locks[:0]
	removed := 0
	for _, l := range updated.Locks {
		if l.Reason == reason {
			removed++
			t.record(domain.EntityDatasetLock, domain.ActionDelete, l, nil)
			continue
		}
		kept = append(kept, l)
	}
	updated.Locks = kept
	t.state.datasets[datasetID] = updated
	return removed, nil
}

func (t *transaction) UpdateDatasetLock(datasetID string, reason domain.LockReason, mutator func(*domain.DatasetLock) error) (domain.DatasetLock, error) {
	current, ok := t.state.datasets[datasetID]
	if !ok {
		return domain.DatasetLock{}, fmt.Errorf("dataset %q not found", datasetID)
	}
	updated := cloneDataset(current)
	lock := updated.LockFor(reason)
	if lock == nil {
		return domain.DatasetLock{}, fmt.Errorf("dataset %q holds no %s lock", datasetID, reason)
	}
	before := *lock
	if err := mutator(lock); err != nil {
		return domain.DatasetLock{}, err
	}
	lock.ID = before.ID
	lock.DatasetID = datasetID
	t.state.datasets[datasetID] = updated
	t.record(domain.EntityDatasetLock, domain.ActionUpdate, before, *lock)
	return *lock, nil
}

func (t *transaction) UpsertVersionUser(vu domain.DatasetVersionUser) (domain.DatasetVersionUser, error) {
	if vu.VersionID == "" || vu.UserID == "" {
		return domain.DatasetVersionUser{}, fmt.Errorf("version user requires version and user ids")
	}
	key := versionUserKey(vu.VersionID, vu.UserID)
	before, existed := t.state.versionUsers[key]
	t.state.versionUsers[key] = vu
	if existed {
		t.record(domain.EntityVersionUser, domain.ActionUpdate, before, vu)
	} else {
		t.record(domain.EntityVersionUser, domain.ActionCreate, nil, vu)
	}
	return vu, nil
}

func (t *transaction) AppendFailureLog(entry domain.FailureLogEntry) error {
	if entry.DatasetID == "" {
		return fmt.Errorf("failure log entry requires a dataset id")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = t.now
	}
	t.state.failures = append(t.state.failures, entry)
	return nil
}

func (t *transaction) FindDataset(id string) (domain.Dataset, bool) {
	d, ok := t.state.datasets[id]
	if !ok {
		return domain.Dataset{}, false
	}
	return cloneDataset(d), true
}

func (t *transaction) FindDataverse(id string) (domain.Dataverse, bool) {
	dv, ok := t.state.dataverses[id]
	if !ok {
		return domain.Dataverse{}, false
	}
	return cloneDataverse(dv), true
}

type view struct {
	state *memoryState
}

func newView(state *memoryState) *view { return &view{state: state} }

func (v *view) ListDatasets() []domain.Dataset {
	out := make([]domain.Dataset, 0, len(v.state.datasets))
	for _, d := range v.state.datasets {
		out = append(out, cloneDataset(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) ListDataverses() []domain.Dataverse {
	out := make([]domain.Dataverse, 0, len(v.state.dataverses))
	for _, dv := range v.state.dataverses {
		out = append(out, cloneDataverse(dv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) FindDataset(id string) (domain.Dataset, bool) {
	d, ok := v.state.datasets[id]
	if !ok {
		return domain.Dataset{}, false
	}
	return cloneDataset(d), true
}

func (v *view) FindDataverse(id string) (domain.Dataverse, bool) {
	dv, ok := v.state.dataverses[id]
	if !ok {
		return domain.Dataverse{}, false
	}
	return cloneDataverse(dv), true
}

func (v *view) FindVersionUser(versionID, userID string) (domain.DatasetVersionUser, bool) {
	vu, ok := v.state.versionUsers[versionUserKey(versionID, userID)]
	return vu, ok
}

func (v *view) FailureLog(datasetID string) []domain.FailureLogEntry {
	var out []domain.FailureLogEntry
	for _, e := range v.state.failures {
		if e.DatasetID == datasetID {
			out = append(out, e)
		}
	}
	return out
}

var _ domain.PersistentStore = (*Store)(nil)
var _ domain.Transaction = (*transaction)(nil)
var _ domain.TransactionView = (*view)(nil)
