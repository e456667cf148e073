package service

import (
	"context"
	"fmt"
	"log"

	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

// AuthAPI is the part of the autobot API the account panel uses.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, *model.AccountUser, error)
	Me(ctx context.Context) (*model.AccountUser, error)
	Logout(ctx context.Context) (*model.Message, error)
}

// SessionStore keeps the autobot session of each Telegram operator.
type SessionStore interface {
	SetSession(ctx context.Context, telegramID int64, session, apiUser string) error
	ClearSession(ctx context.Context, telegramID int64) error
}

// Auth is the account panel of one operator.
type Auth struct {
	api        AuthAPI
	store      SessionStore
	notes      Notifier
	telegramID int64
}

func NewAuth(authAPI AuthAPI, store SessionStore, notes Notifier, telegramID int64) *Auth {
	return &Auth{api: authAPI, store: store, notes: notes, telegramID: telegramID}
}

// Login exchanges credentials for a session and stores it for the operator.
func (a *Auth) Login(ctx context.Context, username, password string) (*model.AccountUser, error) {
	session, user, err := a.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := a.store.SetSession(ctx, a.telegramID, session, user.Username); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	log.Printf("[info] operator %d logged in as %s", a.telegramID, user.Username)
	return user, nil
}

func (a *Auth) Me(ctx context.Context) (*model.AccountUser, error) {
	return a.api.Me(ctx)
}

// Logout ends the server session and forgets the local one.
func (a *Auth) Logout(ctx context.Context) error {
	if _, err := a.api.Logout(ctx); err != nil {
		a.notes.Notify("退出登录失败: "+ErrorText(err), notify.Error)
		return err
	}
	if err := a.Forget(ctx); err != nil {
		return err
	}
	a.notes.Notify("已成功退出登录", notify.Success)
	return nil
}

// Forget clears the stored session, as after a rejected request.
func (a *Auth) Forget(ctx context.Context) error {
	if err := a.store.ClearSession(ctx, a.telegramID); err != nil {
		return fmt.Errorf("forget session: %w", err)
	}
	return nil
}
