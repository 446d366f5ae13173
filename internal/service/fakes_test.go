package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/internal/model"
	"stageflow/internal/progression"
	"stageflow/internal/repository"
	"stageflow/internal/status"
)

// fakeProjectStore keeps documents in memory, handing out deep copies the
// way a database round trip would.
type fakeProjectStore struct {
	mu       sync.Mutex
	projects map[string]*model.Project
	nextID   int
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: make(map[string]*model.Project), nextID: 1}
}

func copyProject(p *model.Project) *model.Project {
	data, _ := json.Marshal(p)
	var out model.Project
	_ = json.Unmarshal(data, &out)
	out.EnsureMaps()
	return &out
}

func (f *fakeProjectStore) Insert(_ context.Context, p *model.Project) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	stored := copyProject(p)
	stored.ID = id
	f.projects[p.Name] = stored
	return id, nil
}

func (f *fakeProjectStore) FindByName(_ context.Context, name string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyProject(p), nil
}

func (f *fakeProjectStore) List(_ context.Context) ([]*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.projects))
	for name := range f.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*model.Project, 0, len(names))
	for _, name := range names {
		out = append(out, copyProject(f.projects[name]))
	}
	return out, nil
}

func (f *fakeProjectStore) Update(_ context.Context, p *model.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[p.Name]; !ok {
		return repository.ErrNotFound
	}
	f.projects[p.Name] = copyProject(p)
	return nil
}

func (f *fakeProjectStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[name]; !ok {
		return repository.ErrNotFound
	}
	delete(f.projects, name)
	return nil
}

// fakeLogStore mirrors the sibling-update semantics of the SQL repository,
// including the sticky pending statuses.
type fakeLogStore struct {
	mu     sync.Mutex
	logs   map[int]*model.Log
	nextID int
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{logs: make(map[int]*model.Log), nextID: 1}
}

func copyLog(l *model.Log) *model.Log {
	out := *l
	return &out
}

func sameTuple(l *model.Log, projectName, stageKey string, substageID *string) bool {
	if l.ProjectName != projectName || l.StageKey != stageKey {
		return false
	}
	if (l.SubstageID == nil) != (substageID == nil) {
		return false
	}
	return l.SubstageID == nil || *l.SubstageID == *substageID
}

func (f *fakeLogStore) Insert(_ context.Context, l *model.Log) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	stored := copyLog(l)
	stored.ID = id
	f.logs[id] = stored
	return id, nil
}

func (f *fakeLogStore) DeleteByProject(_ context.Context, projectName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, l := range f.logs {
		if l.ProjectName == projectName {
			delete(f.logs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeLogStore) FindByID(_ context.Context, id int) (*model.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyLog(l), nil
}

func (f *fakeLogStore) findWhere(match func(*model.Log) bool) []*model.Log {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Log
	for _, l := range f.logs {
		if match(l) {
			out = append(out, copyLog(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeLogStore) FindByUser(_ context.Context, user string) ([]*model.Log, error) {
	return f.findWhere(func(l *model.Log) bool { return l.AssignedUser == user }), nil
}

func (f *fakeLogStore) FindByProject(_ context.Context, projectName string) ([]*model.Log, error) {
	return f.findWhere(func(l *model.Log) bool { return l.ProjectName == projectName }), nil
}

func (f *fakeLogStore) FindSiblings(_ context.Context, projectName, stageKey string, substageID *string) ([]*model.Log, error) {
	return f.findWhere(func(l *model.Log) bool { return sameTuple(l, projectName, stageKey, substageID) }), nil
}

func (f *fakeLogStore) UpdateStatus(_ context.Context, id int, statusValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return repository.ErrNotFound
	}
	l.Status = statusValue
	return nil
}

func (f *fakeLogStore) MarkVerified(_ context.Context, projectName, stageKey string, substageID *string, completedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, l := range f.logs {
		if sameTuple(l, projectName, stageKey, substageID) {
			at := completedAt
			l.IsCompleted = true
			l.Status = string(status.Completed)
			l.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (f *fakeLogStore) MarkUncompleted(_ context.Context, projectName, stageKey string, substageID *string, statusValue string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, l := range f.logs {
		if !sameTuple(l, projectName, stageKey, substageID) {
			continue
		}
		if !l.IsCompleted && !status.Recalculable(status.Kind(l.Status)) {
			continue
		}
		l.IsCompleted = false
		l.Status = statusValue
		l.CompletedAt = nil
		n++
	}
	return n, nil
}

func (f *fakeLogStore) UpdateSiblingDeadlines(_ context.Context, projectName, stageKey string, substageID *string, substageDeadline, stageDeadline, statusValue string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, l := range f.logs {
		if !sameTuple(l, projectName, stageKey, substageID) || l.ExtensionRequestedBy != nil {
			continue
		}
		l.SubstageDeadline = substageDeadline
		l.StageDeadline = stageDeadline
		l.Status = statusValue
		n++
	}
	return n, nil
}

func (f *fakeLogStore) RecordExtensionRequest(_ context.Context, id int, requestedBy, reason string, requestedAt time.Time, statusValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return repository.ErrNotFound
	}
	l.ExtensionRequestedBy = &requestedBy
	l.ExtensionRequestedAt = &requestedAt
	l.ExtensionReason = &reason
	l.Status = statusValue
	return nil
}

func (f *fakeLogStore) ResolveExtension(_ context.Context, id int, substageDeadline, stageDeadline, statusValue string, rejectionNotes *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return repository.ErrNotFound
	}
	l.SubstageDeadline = substageDeadline
	l.StageDeadline = stageDeadline
	l.Status = statusValue
	l.ExtensionRejectionNotes = rejectionNotes
	l.ExtensionRequestedBy = nil
	l.ExtensionRequestedAt = nil
	return nil
}

// fakeMembershipStore tracks user/project buckets in memory.
type fakeMembershipStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]string // user -> project -> bucket
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{buckets: make(map[string]map[string]string)}
}

func (f *fakeMembershipStore) EnsureOngoing(_ context.Context, userName, projectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[userName] == nil {
		f.buckets[userName] = make(map[string]string)
	}
	if _, ok := f.buckets[userName][projectName]; !ok {
		f.buckets[userName][projectName] = model.BucketOngoing
	}
	return nil
}

func (f *fakeMembershipStore) MoveToCompleted(_ context.Context, userName, projectName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[userName] == nil || f.buckets[userName][projectName] != model.BucketOngoing {
		return false, nil
	}
	f.buckets[userName][projectName] = model.BucketCompleted
	return true, nil
}

func (f *fakeMembershipStore) MoveToOngoing(_ context.Context, userName, projectName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[userName] == nil || f.buckets[userName][projectName] != model.BucketCompleted {
		return false, nil
	}
	f.buckets[userName][projectName] = model.BucketOngoing
	return true, nil
}

func (f *fakeMembershipStore) ListByUser(_ context.Context, userName, bucket string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for project, b := range f.buckets[userName] {
		if b == bucket {
			names = append(names, project)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeMembershipStore) bucketOf(userName, projectName string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[userName][projectName]
}

// fakeNotifier records every enqueued payload.
type fakeNotifier struct {
	mu       sync.Mutex
	payloads []mqcontracts.EmailPayload
}

func (f *fakeNotifier) EnqueueEmail(_ context.Context, payload mqcontracts.EmailPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.payloads))
	for i, p := range f.payloads {
		out[i] = p.Kind
	}
	return out
}

// fakeSummaryCache tracks invalidations.
type fakeSummaryCache struct {
	mu          sync.Mutex
	data        map[string]progression.Summary
	invalidated []string
}

func newFakeSummaryCache() *fakeSummaryCache {
	return &fakeSummaryCache{data: make(map[string]progression.Summary)}
}

func (f *fakeSummaryCache) Get(_ context.Context, project string) (*progression.Summary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[project]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (f *fakeSummaryCache) Set(_ context.Context, project string, s progression.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[project] = s
}

func (f *fakeSummaryCache) Invalidate(_ context.Context, project string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, project)
	f.invalidated = append(f.invalidated, project)
}
