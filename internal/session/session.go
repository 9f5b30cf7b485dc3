// Package session is the single entry point to an unlocked vault. Every
// operation runs under one lock so the ledger, the key and the file on disk
// never disagree.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"satya/go-core/internal/identity"
	"satya/go-core/internal/intent"
	"satya/go-core/internal/metrics"
	"satya/go-core/internal/platform/privacylog"
	"satya/go-core/internal/securestore"
	"satya/go-core/internal/vault"
	"satya/go-core/internal/vaulterr"
)

type Options struct {
	Salt    []byte
	KDF     securestore.KDFParams
	Deriver identity.Deriver
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
	Rand    io.Reader
}

func (o Options) withDefaults() Options {
	if len(o.Salt) == 0 {
		o.Salt = securestore.DefaultSalt
	}
	if o.KDF == (securestore.KDFParams{}) {
		o.KDF = securestore.DefaultKDFParams()
	}
	if o.Deriver == nil {
		o.Deriver = identity.HMACDeriver{}
	}
	if o.Logger == nil {
		o.Logger = privacylog.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	return o
}

// state is replaced as a whole; it is never partially updated.
type state struct {
	root     string
	deviceID string
	store    *vault.Store
	ledger   *identity.Ledger
	key      *securestore.VaultKey
}

func (st *state) purge() {
	if st == nil {
		return
	}
	st.key.Destroy()
	st.ledger.Wipe()
}

type Session struct {
	mu       sync.Mutex
	opts     Options
	active   *state
	throttle unlockThrottle
}

func New(opts Options) *Session {
	return &Session{opts: opts.withDefaults()}
}

// Unlock derives the vault key from pin, opens (or bootstraps) the vault at
// root for deviceID and makes it the active session. The previous session
// survives any failure.
func (s *Session) Unlock(pin, deviceID, root string) error {
	const op = "session.unlock"
	deviceID = strings.TrimSpace(deviceID)
	root = strings.TrimSpace(root)
	if deviceID == "" || root == "" {
		return vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("device id and storage root are required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	if wait := s.throttle.retryAfter(now); wait > 0 {
		s.opts.Metrics.Unlock(metrics.ResultThrottled)
		s.log().Warn("vault unlock throttled", "action", "unlock", "status", "throttled", "device_id", deviceID, "retry_after", wait)
		return vaulterr.New(vaulterr.KindThrottled, op, fmt.Errorf("retry in %s", wait.Round(time.Second)))
	}

	key, err := securestore.DeriveKey(pin, s.opts.Salt, s.opts.KDF)
	if err != nil {
		s.opts.Metrics.Unlock(metrics.ResultError)
		return vaulterr.New(vaulterr.KindKdfFailure, op, err)
	}

	store := vault.NewStore(root)
	v, err := store.Load(key, deviceID)
	if err != nil {
		key.Destroy()
		if errors.Is(err, vaulterr.ErrAuthenticationFailure) {
			backoff := s.throttle.fail(now)
			s.opts.Metrics.Unlock(metrics.ResultAuth)
			s.log().Warn("vault unlock failed", "action", "unlock", "status", "auth_failed", "device_id", deviceID, "backoff", backoff)
			return err
		}
		s.opts.Metrics.Unlock(metrics.ResultError)
		s.log().Error("vault unlock failed", "action", "unlock", "status", vaulterr.KindOf(err).String(), "device_id", deviceID, "error", err)
		return err
	}

	ledger := identity.NewLedger(v, s.opts.Deriver, s.opts.Now)
	created, err := ledger.EnsureMasterSeed(s.opts.Rand)
	if err != nil {
		ledger.Wipe()
		key.Destroy()
		s.opts.Metrics.Unlock(metrics.ResultError)
		return err
	}
	if created {
		if err := store.Save(key, deviceID, ledger.Vault()); err != nil {
			ledger.Wipe()
			key.Destroy()
			s.opts.Metrics.Unlock(metrics.ResultError)
			s.log().Error("vault bootstrap failed", "action", "unlock", "status", "storage", "device_id", deviceID, "error", err)
			return err
		}
	}

	s.active.purge()
	s.active = &state{
		root:     root,
		deviceID: deviceID,
		store:    store,
		ledger:   ledger,
		key:      key,
	}
	s.throttle.reset()
	s.opts.Metrics.Unlock(metrics.ResultOK)
	s.log().Info("vault unlocked", "action", "unlock", "status", "ok", "device_id", deviceID, "bootstrapped", created, "identities", len(v.Identities))
	return nil
}

// CreateIdentity derives, records and persists a new identity. If the save
// fails the ledger is rolled back and the file is untouched.
func (s *Session) CreateIdentity(label string) (identity.Identity, error) {
	const op = "session.create_identity"
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.active
	if st == nil {
		return identity.Identity{}, vaulterr.New(vaulterr.KindVaultLocked, op, nil)
	}
	ident, rollback, err := st.ledger.Append(label)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := st.store.Save(st.key, st.deviceID, st.ledger.Vault()); err != nil {
		rollback()
		s.log().Error("identity persist failed", "action", "create_identity", "status", "storage", "device_id", st.deviceID, "error", err)
		return identity.Identity{}, err
	}
	s.opts.Metrics.IdentityCreated()
	s.log().Info("identity created", "action", "create_identity", "status", "ok", "identity_id", ident.ID, "index", ident.Index)
	return ident, nil
}

func (s *Session) ListIdentities() ([]identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, vaulterr.New(vaulterr.KindVaultLocked, "session.list_identities", nil)
	}
	return s.active.ledger.List(), nil
}

// PublicKey returns the signing public key of an identity in the active
// session.
func (s *Session) PublicKey(identityID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, vaulterr.New(vaulterr.KindVaultLocked, "session.public_key", nil)
	}
	return s.active.ledger.PublicKey(identityRef(identityID))
}

// identityRef accepts an identity id or its did:satya: DID.
func identityRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if id, ok := identity.IDFromDID(ref); ok {
		return id
	}
	return ref
}

// SignIntent parses rawText as a UPI payment link and signs it with the
// identity's key. identityID may also be the identity's DID.
func (s *Session) SignIntent(identityID, rawText string) (intent.SignedEnvelope, error) {
	const op = "session.sign_intent"
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.active
	if st == nil {
		return intent.SignedEnvelope{}, vaulterr.New(vaulterr.KindVaultLocked, op, nil)
	}
	identityID = identityRef(identityID)
	ident, ok := st.ledger.Lookup(identityID)
	if !ok {
		return intent.SignedEnvelope{}, vaulterr.New(vaulterr.KindIdentityNotFound, op, identity.ErrIdentityNotFound)
	}
	parsed, err := intent.ParseUPI(rawText)
	if err != nil {
		return intent.SignedEnvelope{}, err
	}
	seed, err := st.ledger.PrivateKey(identityID)
	if err != nil {
		return intent.SignedEnvelope{}, err
	}
	defer zero(seed)

	env, err := intent.Sign(intent.NewPaymentPayload(parsed, s.opts.Now()), seed, ident.DID)
	if err != nil {
		s.log().Error("intent signing failed", "action", "sign_intent", "status", vaulterr.KindOf(err).String(), "identity_id", identityID, "error", err)
		return intent.SignedEnvelope{}, err
	}
	s.opts.Metrics.IntentSigned()
	s.log().Info("intent signed", "action", "sign_intent", "status", "ok", "identity_id", identityID, "cid", env.CID)
	return env, nil
}

// Reset drops all in-memory secrets, then moves <root>/vault-store aside.
// Memory is purged even when the disk step fails. Resetting twice is fine.
func (s *Session) Reset(root string) error {
	const op = "session.reset"
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active.purge()
	s.active = nil
	s.throttle.reset()

	root = strings.TrimSpace(root)
	if root == "" {
		return vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("storage root is required"))
	}
	aside, err := vault.NewStore(root).Discard(s.opts.Now())
	if err != nil {
		s.log().Error("vault reset failed", "action", "reset", "status", "storage", "error", err)
		return err
	}
	s.log().Info("vault reset", "action", "reset", "status", "ok", "moved", aside != "")
	return nil
}

// Lock purges the active session without touching disk.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.purge()
	s.active = nil
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Root reports the storage root of the active session, if any.
func (s *Session) Root() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.root, true
}

func (s *Session) log() *slog.Logger {
	return s.opts.Logger
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
