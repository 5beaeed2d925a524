package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eegility/internal/domain"
	"eegility/internal/repository/memstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

var (
	alice = domain.User{ID: "alice", Email: "alice@clinic-a.org", Role: domain.RoleUser,
		Institution: "clinic-a", Department: "neurology", IsActive: true}
	bob = domain.User{ID: "bob", Email: "bob@clinic-a.org", Role: domain.RoleUser,
		Institution: "clinic-a", Department: "neurology", IsActive: true}
	carol = domain.User{ID: "carol", Email: "carol@clinic-a.org", Role: domain.RoleDepartmentHead,
		Institution: "clinic-a", Department: "neurology", IsActive: true}
	dave = domain.User{ID: "dave", Email: "dave@clinic-a.org", Role: domain.RoleDepartmentHead,
		Institution: "clinic-a", Department: "cardiology", IsActive: true}
	erin = domain.User{ID: "erin", Email: "erin@clinic-b.org", Role: domain.RoleDepartmentHead,
		Institution: "clinic-b", Department: "neurology", IsActive: true}
	root = domain.User{ID: "root", Email: "root@eegility.org", Role: domain.RoleAdmin,
		Institution: "eegility", IsActive: true}
	frank = domain.User{ID: "frank", Email: "frank@clinic-a.org", Role: domain.RoleUser,
		Institution: "clinic-a", Department: "neurology", IsActive: false}
)

type testEnv struct {
	t        *testing.T
	db       *memstore.DB
	perms    *PermissionService
	shares   *ShareService
	records  *RecordService
	notifier *recordingNotifier
	queue    *recordingQueue
	storage  *fakeStorage

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := memstore.New()
	for _, u := range []domain.User{alice, bob, carol, dave, erin, root, frank} {
		db.Users().Put(u)
	}

	env := &testEnv{
		t:        t,
		db:       db,
		notifier: &recordingNotifier{events: make(chan domain.ShareEvent, 64)},
		queue:    &recordingQueue{jobs: make(chan domain.AnalysisJob, 16)},
		storage:  &fakeStorage{objects: map[string]int64{}},
		now:      baseTime,
	}

	log := zap.NewNop()
	env.perms = NewPermissionService(db.Records(), db.Shares(), log)
	env.shares = NewShareService(db.Shares(), db.Records(), db.Users(), env.perms, env.notifier, log)
	env.records = NewRecordService(db.Records(), env.perms, env.storage, env.queue, log)

	env.perms.SetClock(env.clock)
	env.shares.SetClock(env.clock)
	env.records.SetClock(env.clock)
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) setNow(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

// addRecord stores a record owned by owner and uploaded at uploaded.
func (e *testEnv) addRecord(owner domain.User, uploaded time.Time, mutate ...func(*domain.EegRecord)) *domain.EegRecord {
	e.t.Helper()

	record := &domain.EegRecord{
		ID:               uuid.New(),
		OwnerUserID:      owner.ID,
		Institution:      owner.Institution,
		Department:       owner.Department,
		Filename:         "session.edf",
		OriginalFilename: "session.edf",
		Format:           domain.FormatEDF,
		SizeBytes:        1024,
		UploadDate:       uploaded,
		Tags:             []string{},
		StorageKey:       "eeg/" + owner.ID + "/session.edf",
	}
	for _, m := range mutate {
		m(record)
	}
	if err := e.db.Records().Create(context.Background(), record); err != nil {
		e.t.Fatalf("create record: %v", err)
	}
	return record
}

// share creates a request from sharer to recipient and, when accept is set,
// accepts it as the recipient.
func (e *testEnv) share(
	sharer, recipient domain.User,
	record *domain.EegRecord,
	permission domain.Permission,
	expiresAt *time.Time,
	accept bool,
) *domain.SharingRequest {
	e.t.Helper()

	req, err := e.shares.CreateShare(context.Background(), sharer.Identity(), CreateShareInput{
		RecordID:   record.ID,
		Recipient:  recipient.Email,
		Permission: permission,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		e.t.Fatalf("create share: %v", err)
	}
	if !accept {
		return req
	}
	accepted, err := e.shares.RespondToShare(context.Background(), recipient.Identity(), req.ID, domain.ShareActionAccept)
	if err != nil {
		e.t.Fatalf("accept share: %v", err)
	}
	return accepted
}

func (e *testEnv) can(user domain.User, record *domain.EegRecord, action domain.Action) bool {
	e.t.Helper()
	ok, err := e.perms.CheckPermission(context.Background(), user.Identity(), record.ID, action)
	if err != nil {
		e.t.Fatalf("check permission: %v", err)
	}
	return ok
}

func assertKind(t *testing.T, err error, want domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := domain.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

type recordingNotifier struct {
	events chan domain.ShareEvent
}

func (n *recordingNotifier) NotifyShare(_ context.Context, event domain.ShareEvent) error {
	n.events <- event
	return nil
}

// next waits for the next published event.
func (n *recordingNotifier) next(t *testing.T) domain.ShareEvent {
	t.Helper()
	select {
	case ev := <-n.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no share event published")
		return domain.ShareEvent{}
	}
}

type recordingQueue struct {
	jobs chan domain.AnalysisJob
}

func (q *recordingQueue) EnqueueAnalysis(_ context.Context, job domain.AnalysisJob) error {
	q.jobs <- job
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]int64
	deleted []string
}

func (s *fakeStorage) PresignGet(_ context.Context, key, downloadName string, ttl time.Duration) (string, error) {
	return "https://storage.test/" + key + "?name=" + downloadName + "&ttl=" + ttl.String(), nil
}

func (s *fakeStorage) StatObject(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[key]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return size, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return errors.New("no such key")
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}
