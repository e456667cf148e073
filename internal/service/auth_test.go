package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"autobot-console/internal/api"
)

type memorySessions struct {
	session map[int64]string
	user    map[int64]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{session: map[int64]string{}, user: map[int64]string{}}
}

func (m *memorySessions) SetSession(_ context.Context, telegramID int64, session, apiUser string) error {
	m.session[telegramID] = session
	m.user[telegramID] = apiUser
	return nil
}

func (m *memorySessions) ClearSession(_ context.Context, telegramID int64) error {
	delete(m.session, telegramID)
	delete(m.user, telegramID)
	return nil
}

func TestAuthLoginStoresSession(t *testing.T) {
	client, srv := newTestAPI(t)
	srv.AddAccount("admin", "secret")
	srv.RequireSession(true)
	store := newMemorySessions()
	auth := NewAuth(client, store, &recordingNotifier{}, 42)

	user, err := auth.Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "admin" || store.session[42] == "" || store.user[42] != "admin" {
		t.Fatalf("expected stored session for admin, got %v %v", store.session, store.user)
	}

	bound := NewAuth(client.WithSession(store.session[42], nil), store, &recordingNotifier{}, 42)
	me, err := bound.Me(context.Background())
	if err != nil || me.Username != "admin" {
		t.Fatalf("expected /api/me to accept the stored session, got %v %v", me, err)
	}
}

func TestAuthLoginWrongPassword(t *testing.T) {
	client, srv := newTestAPI(t)
	srv.AddAccount("admin", "secret")
	store := newMemorySessions()
	auth := NewAuth(client, store, &recordingNotifier{}, 42)

	_, err := auth.Login(context.Background(), "admin", "nope")
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
	if _, ok := store.session[42]; ok {
		t.Fatalf("expected no session to be stored")
	}
}

func TestAuthLogout(t *testing.T) {
	client, _ := newTestAPI(t)
	store := newMemorySessions()
	store.session[7] = "s"
	notes := &recordingNotifier{}
	auth := NewAuth(client, store, notes, 7)

	if err := auth.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := store.session[7]; ok {
		t.Fatalf("expected session to be cleared")
	}
	if n := notes.last(t); n.message != "已成功退出登录" {
		t.Fatalf("unexpected toast %q", n.message)
	}
}

func TestAuthLogoutFailureKeepsSession(t *testing.T) {
	client, srv := newTestAPI(t)
	srv.Inject(http.MethodPost, "/api/logout", http.StatusInternalServerError, `{"error":"服务器错误"}`)
	store := newMemorySessions()
	store.session[7] = "s"
	notes := &recordingNotifier{}
	auth := NewAuth(client, store, notes, 7)

	if err := auth.Logout(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if store.session[7] != "s" {
		t.Fatalf("expected session to be kept")
	}
	if n := notes.last(t); n.message != "退出登录失败: 服务器错误" {
		t.Fatalf("unexpected toast %q", n.message)
	}
}
