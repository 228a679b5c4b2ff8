package account

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

type VerifierOptions struct {
	CacheExpiryInterval time.Duration `toml:"cache-expiry-interval"`
}

func (o *VerifierOptions) FillDefaults() {
	if o.CacheExpiryInterval == 0 {
		o.CacheExpiryInterval = 30 * time.Second
	}
}

// Verifier wraps Auth and remembers which access tokens were accepted by the
// provider, so that each page load does not need a round-trip to the provider.
type Verifier struct {
	Auth
	o      VerifierOptions
	cache  sync.Map
	epoch  atomic.Uint64
	group  singleflight.Group
	ctx    context.Context
	cancel func()
	done   chan struct{}
	now    func() time.Time
}

var _ Auth = (*Verifier)(nil)

func NewVerifier(o VerifierOptions, auth Auth) *Verifier {
	return newVerifier(o, auth, time.Now)
}

func newVerifier(o VerifierOptions, auth Auth, now func() time.Time) *Verifier {
	o.FillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	v := &Verifier{
		Auth:   auth,
		o:      o,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		now:    now,
	}
	go v.loop()
	return v
}

func hashToken(tok string) string {
	hash := sha256.Sum256([]byte(tok))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// GetUser validates the access token, using the cache when possible. Concurrent
// validations of the same token share one provider call. If ctx is done first,
// GetUser returns ctx.Err() and the shared call goes on for the other callers.
func (v *Verifier) GetUser(ctx context.Context, accessToken string) (User, error) {
	now := v.now()
	hash := hashToken(accessToken)
	if val, ok := v.cache.Load(hash); ok {
		entry := val.(*verifierCacheVal)
		if now.Before(entry.deadline) {
			return entry.user, nil
		}
		v.cache.CompareAndDelete(hash, val)
	}
	ch := v.group.DoChan(hash, func() (any, error) {
		epoch := v.epoch.Load()
		user, err := v.Auth.GetUser(v.ctx, accessToken)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		// Tokens forgotten while the call was in flight must not get back into the cache.
		if v.epoch.Load() == epoch {
			v.cache.Store(hash, &verifierCacheVal{
				user:     user,
				deadline: v.now().Add(v.o.CacheExpiryInterval),
			})
		}
		return user, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return User{}, res.Err
		}
		return res.Val.(User), nil
	case <-ctx.Done():
		return User{}, ctx.Err()
	}
}

func (v *Verifier) SignOut(ctx context.Context, accessToken string) error {
	v.Forget(accessToken)
	err := v.Auth.SignOut(ctx, accessToken)
	v.Forget(accessToken)
	return err
}

func (v *Verifier) Forget(accessToken string) {
	v.epoch.Add(1)
	v.cache.Delete(hashToken(accessToken))
}

func (v *Verifier) Close() {
	v.cancel()
	<-v.done
}

func (v *Verifier) loop() {
	defer close(v.done)
	ticker := time.NewTicker(v.o.CacheExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.C:
			now := v.now()
			v.cache.Range(func(k, val any) bool {
				entry := val.(*verifierCacheVal)
				if !now.Before(entry.deadline) {
					v.cache.CompareAndDelete(k, val)
				}
				return true
			})
		}
	}
}

type verifierCacheVal struct {
	user     User
	deadline time.Time
}
