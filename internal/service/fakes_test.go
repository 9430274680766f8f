package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platewise/auth/internal/config"
	"github.com/platewise/auth/internal/directory"
	"github.com/platewise/auth/internal/domain"
	"github.com/platewise/auth/internal/profile"
	"github.com/platewise/auth/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		OTPCodeTTL:      5 * time.Minute,
		OTPResendWindow: time.Minute,
		OTPMaxAttempts:  5,
		SendTimeout:     time.Second,
		RequestTimeout:  5 * time.Second,
	}
}

// memoryChallengeStore is an in-memory store.ChallengeStore.
type memoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

func newMemoryChallengeStore() *memoryChallengeStore {
	return &memoryChallengeStore{challenges: make(map[string]domain.Challenge)}
}

func (m *memoryChallengeStore) Get(ctx context.Context, email string) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[email]
	if !ok {
		return domain.Challenge{}, store.ErrNotFound
	}
	return ch, nil
}

func (m *memoryChallengeStore) Replace(ctx context.Context, ch domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[ch.Email] = ch
	return nil
}

func (m *memoryChallengeStore) IncrementAttempts(ctx context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[email]
	if !ok {
		return 0, store.ErrNotFound
	}
	ch.Attempts++
	m.challenges[email] = ch
	return ch.Attempts, nil
}

func (m *memoryChallengeStore) MarkVerified(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[email]
	if !ok {
		return store.ErrNotFound
	}
	ch.Verified = true
	m.challenges[email] = ch
	return nil
}

func (m *memoryChallengeStore) Delete(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, email)
	return nil
}

func (m *memoryChallengeStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.challenges)
}

// memoryDirectory is an in-memory directory.Directory.
type memoryDirectory struct {
	mu         sync.Mutex
	identities map[int64]domain.Identity
	nextID     int64

	failTokens bool
	stallFind  bool
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{identities: make(map[int64]domain.Identity), nextID: 1000}
}

func (m *memoryDirectory) seed(identity domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
}

func (m *memoryDirectory) get(id int64) (domain.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	return identity, ok
}

func (m *memoryDirectory) Get(ctx context.Context, id int64) (domain.Identity, error) {
	identity, ok := m.get(id)
	if !ok {
		return domain.Identity{}, directory.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *memoryDirectory) Create(ctx context.Context, email string, verified bool) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ownerLocked(email); ok {
		return domain.Identity{}, directory.ErrEmailClaimed
	}
	m.nextID++
	identity := domain.Identity{ID: m.nextID, Email: email, EmailVerified: verified}
	m.identities[identity.ID] = identity
	return identity, nil
}

func (m *memoryDirectory) CreateAnonymous(ctx context.Context) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	identity := domain.Identity{ID: m.nextID, IsAnonymous: true}
	m.identities[identity.ID] = identity
	return identity, nil
}

func (m *memoryDirectory) Update(ctx context.Context, id int64, email string, verified bool) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return domain.Identity{}, directory.ErrIdentityNotFound
	}
	if ownerID, ok := m.ownerLocked(email); ok && ownerID != id {
		return domain.Identity{}, directory.ErrEmailClaimed
	}
	identity.Email = email
	identity.EmailVerified = verified
	identity.IsAnonymous = false
	m.identities[id] = identity
	return identity, nil
}

func (m *memoryDirectory) FindByEmail(ctx context.Context, email string) (domain.Identity, error) {
	if m.stallFind {
		<-ctx.Done()
		return domain.Identity{}, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ownerLocked(email); ok {
		return m.identities[id], nil
	}
	return domain.Identity{}, directory.ErrIdentityNotFound
}

func (m *memoryDirectory) IssueSessionToken(ctx context.Context, identity domain.Identity) (string, error) {
	if m.failTokens {
		return "", errors.New("token backend down")
	}
	return fmt.Sprintf("session-%d", identity.ID), nil
}

func (m *memoryDirectory) ownerLocked(email string) (int64, bool) {
	for id, identity := range m.identities {
		if identity.Email == email && email != "" {
			return id, true
		}
	}
	return 0, false
}

// memoryProfileRepo is an in-memory profile.Repository.
type memoryProfileRepo struct {
	mu   sync.Mutex
	docs map[int64]profile.Document

	failFill bool
}

func newMemoryProfileRepo() *memoryProfileRepo {
	return &memoryProfileRepo{docs: make(map[int64]profile.Document)}
}

func (m *memoryProfileRepo) seed(identityID int64, doc profile.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[identityID] = cloneDoc(doc)
}

func (m *memoryProfileRepo) Get(ctx context.Context, identityID int64) (profile.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[identityID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *memoryProfileRepo) Merge(ctx context.Context, identityID int64, fields profile.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[identityID]
	if !ok {
		doc = profile.Document{}
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.docs[identityID] = doc
	return nil
}

func (m *memoryProfileRepo) FillMissing(ctx context.Context, identityID int64, fields profile.Document) error {
	if m.failFill {
		return errors.New("profile backend down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[identityID]
	if !ok {
		doc = profile.Document{}
	}
	for k, v := range fields {
		if _, exists := doc[k]; !exists {
			doc[k] = v
		}
	}
	m.docs[identityID] = doc
	return nil
}

func (m *memoryProfileRepo) Delete(ctx context.Context, identityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, identityID)
	return nil
}

func (m *memoryProfileRepo) has(identityID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[identityID]
	return ok
}

func cloneDoc(doc profile.Document) profile.Document {
	out := make(profile.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// captureMailer records sends and can be told to fail.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *captureMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func (m *captureMailer) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}
