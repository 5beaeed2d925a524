// Package memstore keeps users, records and sharing requests in memory.
// It follows the same atomicity rules as the Postgres repositories: share
// creation checks for duplicates and inserts under one lock, and status
// changes are compare-and-swap.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"eegility/internal/domain"

	"github.com/google/uuid"
)

type DB struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	records map[uuid.UUID]domain.EegRecord
	shares  map[uuid.UUID]domain.SharingRequest
}

func New() *DB {
	return &DB{
		users:   make(map[string]domain.User),
		records: make(map[uuid.UUID]domain.EegRecord),
		shares:  make(map[uuid.UUID]domain.SharingRequest),
	}
}

func (db *DB) Users() *Users { return &Users{db: db} }
func (db *DB) Records() *Records { return &Records{db: db} }
func (db *DB) Shares() *Shares { return &Shares{db: db} }

func cloneRecord(r domain.EegRecord) *domain.EegRecord {
	if r.Tags != nil {
		r.Tags = append([]string(nil), r.Tags...)
	}
	if r.AdhdAnalysis != nil {
		a := *r.AdhdAnalysis
		r.AdhdAnalysis = &a
	}
	return &r
}

type Users struct {
	db *DB
}

// Put добавляет или заменяет пользователя.
func (u *Users) Put(user domain.User) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	u.db.users[user.ID] = user
}

// Upsert mirrors the Postgres repository used by the remote identity provider.
func (u *Users) Upsert(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.Put(*user)
	return nil
}

func (u *Users) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	user, ok := u.db.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()

	for _, user := range u.db.users {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

type Records struct {
	db *DB
}

func (r *Records) GetByID(ctx context.Context, id uuid.UUID) (*domain.EegRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	record, ok := r.db.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (r *Records) Create(ctx context.Context, record *domain.EegRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.records[record.ID]; ok {
		return domain.NewError(domain.KindConflict, "record %s already exists", record.ID)
	}
	r.db.records[record.ID] = *cloneRecord(*record)
	return nil
}

func (r *Records) UpdateMetadata(
	ctx context.Context,
	id uuid.UUID,
	update domain.RecordUpdate,
) (*domain.EegRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	record, ok := r.db.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if update.Tags != nil {
		record.Tags = append([]string{}, update.Tags...)
	}
	if update.Notes != nil {
		record.Notes = *update.Notes
	}
	r.db.records[id] = record
	return cloneRecord(record), nil
}

func (r *Records) SetAnalysis(ctx context.Context, id uuid.UUID, analysis *domain.AdhdAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	record, ok := r.db.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if analysis != nil {
		a := *analysis
		record.AdhdAnalysis = &a
	} else {
		record.AdhdAnalysis = nil
	}
	r.db.records[id] = record
	return nil
}

// Delete removes the record together with its sharing requests.
func (r *Records) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.db.records, id)
	for shareID, share := range r.db.shares {
		if share.EegRecordID == id {
			delete(r.db.shares, shareID)
		}
	}
	return nil
}

func (r *Records) ListVisible(ctx context.Context, query domain.VisibilityQuery) ([]domain.VisibleRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id := query.Identity
	var rows []domain.VisibleRow
	for _, record := range r.db.records {
		grant := r.db.grantLocked(record.ID, id.UserID, query.Now)

		visible := record.OwnerUserID == id.UserID ||
			id.IsAdmin() ||
			(id.Role == domain.RoleDepartmentHead && id.SameDepartment(record.Institution, record.Department)) ||
			grant != nil
		if !visible || !matches(record, query.Filter) || !query.After.Before(record.UploadDate, record.ID) {
			continue
		}

		row := domain.VisibleRow{Record: *cloneRecord(record)}
		if grant != nil {
			p := grant.Permission
			row.Grant = &p
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Record, rows[j].Record
		if !a.UploadDate.Equal(b.UploadDate) {
			return a.UploadDate.After(b.UploadDate)
		}
		return a.ID.String() < b.ID.String()
	})

	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows, nil
}

func matches(record domain.EegRecord, filter domain.RecordFilter) bool {
	if filter.Format != "" && record.Format != filter.Format {
		return false
	}
	if term := strings.ToLower(filter.SearchTerm); term != "" {
		if !strings.Contains(strings.ToLower(record.OriginalFilename), term) &&
			!strings.Contains(strings.ToLower(record.Notes), term) &&
			!strings.Contains(strings.ToLower(record.SubjectID), term) {
			return false
		}
	}
	if len(filter.Tags) > 0 {
		found := false
		for _, want := range filter.Tags {
			for _, have := range record.Tags {
				if want == have {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// grantLocked returns the live accepted grant for the pair, preferring
// view_download. The caller holds db.mu.
func (db *DB) grantLocked(recordID uuid.UUID, userID string, now time.Time) *domain.SharingRequest {
	var best *domain.SharingRequest
	for _, share := range db.shares {
		if !share.GrantsAccessTo(recordID, userID, now) {
			continue
		}
		if best == nil || share.Permission == domain.PermissionViewDownload {
			s := share
			best = &s
		}
	}
	return best
}

type Shares struct {
	db *DB
}

// Create inserts req unless an active request for the same record and
// recipient exists. Requests for the pair that are only lazily expired are
// stored as expired first.
func (s *Shares) Create(ctx context.Context, req *domain.SharingRequest, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.records[req.EegRecordID]; !ok {
		return domain.ErrNotFound
	}

	for id, existing := range s.db.shares {
		if existing.EegRecordID != req.EegRecordID || existing.SharedWithUserID != req.SharedWithUserID {
			continue
		}
		if existing.EffectiveStatus(now).Active() {
			return domain.ErrDuplicateShare
		}
		if existing.Status.Active() {
			existing.Apply(domain.StatusChange{
				RequestID: id,
				Expected:  existing.Status,
				Next:      domain.ShareStatusExpired,
				At:        now,
			})
			s.db.shares[id] = existing
		}
	}

	s.db.shares[req.ID] = *req
	return nil
}

func (s *Shares) GetByID(ctx context.Context, id uuid.UUID) (*domain.SharingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	share, ok := s.db.shares[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &share, nil
}

func (s *Shares) FindGrant(
	ctx context.Context,
	recordID uuid.UUID,
	userID string,
	now time.Time,
) (*domain.SharingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	return s.db.grantLocked(recordID, userID, now), nil
}

// CompareAndSwapStatus applies change only if the stored status still
// equals change.Expected.
func (s *Shares) CompareAndSwapStatus(ctx context.Context, change domain.StatusChange) (*domain.SharingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	share, ok := s.db.shares[change.RequestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if share.Status != change.Expected {
		return nil, domain.ErrConflict
	}
	share.Apply(change)
	s.db.shares[change.RequestID] = share
	return &share, nil
}

func (s *Shares) ListIncoming(ctx context.Context, userID string) ([]domain.SharingRequest, error) {
	return s.list(ctx, func(r domain.SharingRequest) bool { return r.SharedWithUserID == userID })
}

func (s *Shares) ListOutgoing(ctx context.Context, userID string) ([]domain.SharingRequest, error) {
	return s.list(ctx, func(r domain.SharingRequest) bool { return r.SharedByUserID == userID })
}

func (s *Shares) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.SharingRequest, error) {
	return s.list(ctx, func(r domain.SharingRequest) bool { return r.EegRecordID == recordID })
}

func (s *Shares) list(ctx context.Context, keep func(domain.SharingRequest) bool) ([]domain.SharingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]domain.SharingRequest, 0)
	for _, share := range s.db.shares {
		if keep(share) {
			out = append(out, share)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Shares) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for id, share := range s.db.shares {
		if !share.Status.Active() || !share.Overdue(now) {
			continue
		}
		share.Apply(domain.StatusChange{
			RequestID: id,
			Expected:  share.Status,
			Next:      domain.ShareStatusExpired,
			At:        now,
		})
		s.db.shares[id] = share
		n++
	}
	return n, nil
}
