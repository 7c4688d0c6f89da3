package strava

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSessions struct {
	m       map[int64]Session
	deleted []int64
}

func (s *memSessions) Load(_ context.Context, id int64) (*Session, error) {
	sess, ok := s.m[id]
	if !ok {
		return nil, ErrNoSession
	}
	return &sess, nil
}

func (s *memSessions) Save(_ context.Context, sess *Session) error {
	s.m[sess.AthleteID] = *sess
	return nil
}

func (s *memSessions) Delete(_ context.Context, id int64) error {
	delete(s.m, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeClient struct {
	Client
	exchanged  *Session
	refreshed  *Session
	refreshErr error
	refreshes  int
}

func (f *fakeClient) Exchange(context.Context, string) (*Session, error) {
	return f.exchanged, nil
}

func (f *fakeClient) Refresh(context.Context, *Session) (*Session, error) {
	f.refreshes++
	return f.refreshed, f.refreshErr
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSessions(fc *fakeClient, store *memSessions) *Sessions {
	m := NewSessions(fc, store)
	m.now = func() time.Time { return now }
	return m
}

func TestSession_Expired(t *testing.T) {
	s := &Session{ExpiresAt: now.Add(10 * time.Minute)}
	assert.False(t, s.Expired(now, 5*time.Minute))
	assert.True(t, s.Expired(now, 10*time.Minute))
	assert.True(t, s.Expired(now.Add(time.Hour), 0))
}

func TestSessions_Connect(t *testing.T) {
	store := &memSessions{m: map[int64]Session{}}
	fc := &fakeClient{exchanged: &Session{AthleteID: 42, AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(6 * time.Hour)}}

	s, err := newSessions(fc, store).Connect(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.AthleteID)
	assert.Equal(t, "at", store.m[42].AccessToken)
}

func TestSessions_AccessToken_Valid(t *testing.T) {
	store := &memSessions{m: map[int64]Session{42: {AthleteID: 42, AccessToken: "at", ExpiresAt: now.Add(time.Hour)}}}
	fc := &fakeClient{}

	tok, err := newSessions(fc, store).AccessToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "at", tok)
	assert.Zero(t, fc.refreshes)
}

func TestSessions_AccessToken_Refreshes(t *testing.T) {
	store := &memSessions{m: map[int64]Session{42: {AthleteID: 42, AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Add(time.Minute)}}}
	fc := &fakeClient{refreshed: &Session{AthleteID: 42, AccessToken: "new", RefreshToken: "rt2", ExpiresAt: now.Add(6 * time.Hour)}}

	tok, err := newSessions(fc, store).AccessToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.Equal(t, "rt2", store.m[42].RefreshToken)
}

func TestSessions_AccessToken_RefusedInvalidates(t *testing.T) {
	store := &memSessions{m: map[int64]Session{42: {AthleteID: 42, AccessToken: "old", ExpiresAt: now.Add(-time.Hour)}}}
	fc := &fakeClient{refreshErr: ErrRefreshRefused}

	_, err := newSessions(fc, store).AccessToken(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []int64{42}, store.deleted)
	_, ok := store.m[42]
	assert.False(t, ok)
}

func TestSessions_AccessToken_TransientKeepsSession(t *testing.T) {
	store := &memSessions{m: map[int64]Session{42: {AthleteID: 42, ExpiresAt: now.Add(-time.Hour)}}}
	fc := &fakeClient{refreshErr: errors.New("timeout")}

	_, err := newSessions(fc, store).AccessToken(context.Background(), 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
	assert.Empty(t, store.deleted)
}

func TestSessions_AccessToken_NoSession(t *testing.T) {
	_, err := newSessions(&fakeClient{}, &memSessions{m: map[int64]Session{}}).AccessToken(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoSession)
}
