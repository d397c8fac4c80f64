package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/theoremus-urban-solutions/surveyor-tracking/client"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/prefs"
	"github.com/theoremus-urban-solutions/surveyor-tracking/session"
)

// SessionStore persists the signed-in user. *prefs.Store implements it.
type SessionStore interface {
	SaveSession(ctx context.Context, sess prefs.StoredSession) error
	LoadSession(ctx context.Context) (prefs.StoredSession, error)
	ClearSession(ctx context.Context) error
}

// SignIn logs in through c and persists the session so a restarted agent
// can sign back in without asking again.
func SignIn(ctx context.Context, c *client.Client, store SessionStore, username, password string) (model.Surveyor, error) {
	sess, err := c.Login(ctx, username, password)
	if err != nil {
		return model.Surveyor{}, err
	}
	if err := store.SaveSession(ctx, prefs.StoredSession{
		Username: username,
		Password: password,
		Surveyor: sess.Surveyor,
	}); err != nil {
		return sess.Surveyor, fmt.Errorf("capture: saving session: %w", err)
	}
	return sess.Surveyor, nil
}

// Restore re-derives the credential of the stored session into sessions.
// It reports false when nobody is signed in.
func Restore(ctx context.Context, store SessionStore, sessions *session.Store) (prefs.StoredSession, bool, error) {
	stored, err := store.LoadSession(ctx)
	if errors.Is(err, prefs.ErrNotFound) {
		return prefs.StoredSession{}, false, nil
	}
	if err != nil {
		return prefs.StoredSession{}, false, fmt.Errorf("capture: loading session: %w", err)
	}
	if stored.Username == "" || stored.Surveyor.ID == "" {
		return prefs.StoredSession{}, false, nil
	}
	sessions.Set(stored.Username, stored.Password)
	return stored, true, nil
}

// SignOut stops capture, drops the credential and forgets the stored
// session. a may be nil.
func SignOut(ctx context.Context, a *Agent, c *client.Client, store SessionStore) error {
	if a != nil {
		a.Stop()
	}
	c.Logout()
	if err := store.ClearSession(ctx); err != nil {
		return fmt.Errorf("capture: clearing session: %w", err)
	}
	return nil
}
