package chatclient

import "sync"

// AuthSource supplies the bearer token and the resolved current user. An
// empty token means the client must not connect.
type AuthSource interface {
	Token() string
	CurrentUser() (User, bool)
}

// StaticAuth is an AuthSource holding a fixed token until Clear is called.
type StaticAuth struct {
	mu    sync.RWMutex
	token string
	user  User
}

func NewStaticAuth(token string, user User) *StaticAuth {
	return &StaticAuth{token: token, user: user}
}

func (a *StaticAuth) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *StaticAuth) CurrentUser() (User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user, a.user.ID > 0
}

// Clear drops the token, which stops any further reconnect attempts.
func (a *StaticAuth) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
}
