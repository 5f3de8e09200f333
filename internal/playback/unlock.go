package playback

import "sync"

// UnlockManager tracks whether the client has unlocked audio playback with a
// user gesture. Browsers refuse autoplay until the page has seen one; the
// first reply of a session regularly loses that race.
//
// The latch is sticky: once unlocked it never re-locks for the session's
// lifetime. A play requested while locked is deferred — only the most recent
// request is kept, because replaying a stale reply after a newer one arrived
// would be worse than silence — and runs immediately when the unlock lands.
type UnlockManager struct {
	mu       sync.Mutex
	unlocked bool
	deferred func()
}

// NewUnlockManager returns a locked manager.
func NewUnlockManager() *UnlockManager {
	return &UnlockManager{}
}

// IsUnlocked reports whether audio playback has been unlocked.
func (u *UnlockManager) IsUnlocked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.unlocked
}

// Unlock records the client's unlock gesture and replays the deferred play
// request, if one is pending. Calling Unlock again is a no-op.
func (u *UnlockManager) Unlock() {
	u.mu.Lock()
	play := u.deferred
	u.deferred = nil
	u.unlocked = true
	u.mu.Unlock()

	if play != nil {
		play()
	}
}

// RequestPlay runs play immediately when unlocked, otherwise defers it until
// the unlock gesture arrives. A later request replaces a pending one.
func (u *UnlockManager) RequestPlay(play func()) {
	u.mu.Lock()
	if !u.unlocked {
		u.deferred = play
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()
	play()
}

// DropDeferred discards a pending deferred play, if any. Called when the
// presentation that requested it is torn down.
func (u *UnlockManager) DropDeferred() {
	u.mu.Lock()
	u.deferred = nil
	u.mu.Unlock()
}
