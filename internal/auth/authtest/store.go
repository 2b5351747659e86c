// Package authtest provides in-memory fakes of the auth stores for tests.
package authtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stagehand/adminauth/internal/db/models"
)

// Store is an in-memory admin and session store. It is safe for concurrent use and
// RecordLoginFailure is atomic, matching the SQL implementation.
type Store struct {
	mu       sync.Mutex
	admins   map[string]*models.Admin
	sessions map[string]*models.AdminSession
	failures map[string]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		admins:   make(map[string]*models.Admin),
		sessions: make(map[string]*models.AdminSession),
		failures: make(map[string]error),
	}
}

// FailOn makes every call to method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) failure(method string) error {
	return s.failures[method]
}

// AddAdmin stores a copy of admin, assigning an id when empty, and returns the id.
func (s *Store) AddAdmin(admin *models.Admin) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *admin
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	s.admins[cp.ID] = &cp
	return cp.ID
}

// Admin returns a copy of the stored admin, or nil.
func (s *Store) Admin(id string) *models.Admin {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// UpdateAdmin applies fn to the stored admin.
func (s *Store) UpdateAdmin(id string, fn func(*models.Admin)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.admins[id]; ok {
		fn(a)
	}
}

// Session returns a copy of the stored session, or nil.
func (s *Store) Session(id string) *models.AdminSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *sess
	return &cp
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// -----------------------------------------------------------------------------
// Admin store
// -----------------------------------------------------------------------------

func (s *Store) GetAdminByEmail(_ context.Context, email string) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetAdminByEmail"); err != nil {
		return nil, err
	}
	for _, a := range s.admins {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetAdminByID(_ context.Context, id string) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetAdminByID"); err != nil {
		return nil, err
	}
	a, ok := s.admins[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *Store) RecordLoginFailure(_ context.Context, adminID string, threshold int, lockUntil, now time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RecordLoginFailure"); err != nil {
		return 0, nil, err
	}
	a, ok := s.admins[adminID]
	if !ok {
		return 0, nil, fmt.Errorf("admin %s not found", adminID)
	}

	elapsed := a.LockedUntil != nil && !a.LockedUntil.After(now)
	if elapsed {
		a.FailedLoginAttempts = 1
		a.LockedUntil = nil
	} else {
		a.FailedLoginAttempts++
	}
	if a.FailedLoginAttempts >= threshold {
		until := lockUntil
		a.LockedUntil = &until
	}
	a.UpdatedAt = now

	var locked *time.Time
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		locked = &t
	}
	return a.FailedLoginAttempts, locked, nil
}

func (s *Store) ResetLoginFailures(_ context.Context, adminID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ResetLoginFailures"); err != nil {
		return err
	}
	if a, ok := s.admins[adminID]; ok {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		a.UpdatedAt = now
	}
	return nil
}

func (s *Store) UpdateLastLogin(_ context.Context, adminID, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateLastLogin"); err != nil {
		return err
	}
	if a, ok := s.admins[adminID]; ok {
		t := at
		a.LastLoginAt = &t
		if ip != "" {
			a.LastLoginIP = &ip
		}
	}
	return nil
}

func (s *Store) CheckPermission(_ context.Context, adminID string, resource models.Resource, action models.Action) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CheckPermission"); err != nil {
		return false, err
	}
	a, ok := s.admins[adminID]
	if !ok || !a.IsActive {
		return false, nil
	}
	if set, ok := a.CustomPermissions.Actions(resource); ok {
		return set.Contains(action), nil
	}
	if a.Role == nil {
		return false, nil
	}
	set, ok := a.Role.DefaultPermissions.Actions(resource)
	return ok && set.Contains(action), nil
}

// -----------------------------------------------------------------------------
// Session store
// -----------------------------------------------------------------------------

func (s *Store) CreateSession(_ context.Context, session *models.AdminSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateSession"); err != nil {
		return err
	}
	for _, existing := range s.sessions {
		if existing.SessionTokenHash == session.SessionTokenHash {
			return fmt.Errorf("duplicate session token hash")
		}
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.LastActivityAt
	}
	cp := *session
	s.sessions[cp.ID] = &cp
	return nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (*models.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetSessionByTokenHash"); err != nil {
		return nil, err
	}
	for _, sess := range s.sessions {
		if sess.SessionTokenHash == tokenHash {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("TouchSession"); err != nil {
		return err
	}
	if sess, ok := s.sessions[sessionID]; ok && sess.LastActivityAt.Before(at) {
		sess.LastActivityAt = at
	}
	return nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteSession"); err != nil {
		return err
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteSessionByTokenHash"); err != nil {
		return err
	}
	for id, sess := range s.sessions {
		if sess.SessionTokenHash == tokenHash {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) DeleteSessionsByAdmin(_ context.Context, adminID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteSessionsByAdmin"); err != nil {
		return 0, err
	}
	var n int64
	for id, sess := range s.sessions {
		if sess.AdminID == adminID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListSessionsByAdmin(_ context.Context, adminID string, now, idleCutoff time.Time) ([]*models.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListSessionsByAdmin"); err != nil {
		return nil, err
	}
	out := make([]*models.AdminSession, 0)
	for _, sess := range s.sessions {
		if sess.AdminID != adminID || sess.ExpiresAt.Before(now) || sess.LastActivityAt.Before(idleCutoff) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now, idleCutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteExpiredSessions"); err != nil {
		return 0, err
	}
	var n int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) || sess.LastActivityAt.Before(idleCutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
