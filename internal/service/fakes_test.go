package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

var _ repository.Store = (*fakeStore)(nil)

type relKey struct {
	subject, object int64
	kind            model.RelationKind
}

// fakeStore is an in-memory implementation of repository.Store. It keeps
// the same uniqueness rules as the SQL schema so service logic sees the same
// errors it would in production. A fake (not a mock framework) keeps the
// tests easy to read.
type fakeStore struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	posts     map[int64]*model.Post
	relations map[relKey]bool
	nextID    int64

	// beforeCreateUser runs inside CreateUser before uniqueness checks.
	// Tests use it to simulate a concurrent writer.
	beforeCreateUser func(u *model.User)
	// toggleErr, when set, is returned by ToggleRelation.
	toggleErr   error
	toggleCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[int64]*model.User),
		posts:     make(map[int64]*model.Post),
		relations: make(map[relKey]bool),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// insertUserLocked stores a copy of u. Caller holds f.mu.
func (f *fakeStore) insertUserLocked(u *model.User) error {
	if u.PasswordHash == "" && u.ExternalID == "" {
		return apperror.ValidationFailed("user", "no credential path")
	}
	for _, existing := range f.users {
		switch {
		case existing.Username == u.Username:
			return apperror.DuplicateIdentity("username")
		case u.Email != "" && existing.Email == u.Email:
			return apperror.DuplicateIdentity("email")
		case u.ExternalID != "" && existing.ExternalID == u.ExternalID:
			return apperror.DuplicateIdentity("external_id")
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

// seedUser inserts u directly, bypassing hooks.
func (f *fakeStore) seedUser(u *model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertUserLocked(u); err != nil {
		panic(err)
	}
	return u
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	if f.beforeCreateUser != nil {
		f.beforeCreateUser(u)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	return f.insertUserLocked(u)
}

func (f *fakeStore) findUser(match func(*model.User) bool, value string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", value)
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.ID == id }, strconv.FormatInt(id, 10))
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.Username == username }, username)
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(email)
	return f.findUser(func(u *model.User) bool { return u.Email != "" && u.Email == email }, email)
}

func (f *fakeStore) GetUserByExternalID(_ context.Context, externalID string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.ExternalID != "" && u.ExternalID == externalID }, externalID)
}

func (f *fakeStore) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	lower := strings.ToLower(identifier)
	return f.findUser(func(u *model.User) bool {
		return u.Username == identifier || (u.Email != "" && u.Email == lower)
	}, identifier)
}

func (f *fakeStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := f.GetUserByUsername(ctx, username)
	return err == nil, nil
}

func (f *fakeStore) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := f.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeStore) LinkExternalID(_ context.Context, userID int64, externalID, firstName, lastName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	for _, other := range f.users {
		if other.ID != userID && other.ExternalID == externalID {
			return apperror.DuplicateIdentity("external_id")
		}
	}
	if u.ExternalID != "" && u.ExternalID != externalID {
		return apperror.DuplicateIdentity("email")
	}
	u.ExternalID = externalID
	if firstName != "" {
		u.FirstName = firstName
	}
	if lastName != "" {
		u.LastName = lastName
	}
	return nil
}

func (f *fakeStore) UpdatePasswordHash(_ context.Context, userID int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) CreatePost(_ context.Context, p *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	copied := *p
	f.posts[p.ID] = &copied
	return nil
}

func (f *fakeStore) GetPostByID(_ context.Context, id int64) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) DeletePost(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	delete(f.posts, id)
	for k := range f.relations {
		if k.object == id && !k.kind.TargetsUser() {
			delete(f.relations, k)
		}
	}
	return nil
}

func (f *fakeStore) objectExistsLocked(objectID int64, kind model.RelationKind) bool {
	if kind.TargetsUser() {
		_, ok := f.users[objectID]
		return ok
	}
	_, ok := f.posts[objectID]
	return ok
}

func (f *fakeStore) ToggleRelation(_ context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCalls++
	if f.toggleErr != nil {
		return false, f.toggleErr
	}
	if !f.objectExistsLocked(objectID, kind) {
		return false, apperror.NotFound("object", strconv.FormatInt(objectID, 10))
	}
	k := relKey{subjectID, objectID, kind}
	if f.relations[k] {
		delete(f.relations, k)
		return false, nil
	}
	f.relations[k] = true
	return true, nil
}

func (f *fakeStore) RelationExists(_ context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relations[relKey{subjectID, objectID, kind}], nil
}

func (f *fakeStore) ObjectExists(_ context.Context, objectID int64, kind model.RelationKind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objectExistsLocked(objectID, kind), nil
}

func (f *fakeStore) CountUserRelations(_ context.Context, userID int64) (model.RelationCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c model.RelationCounts
	for k := range f.relations {
		if k.kind == model.RelationFollow && k.object == userID {
			c.Followers++
		}
		if k.subject != userID {
			continue
		}
		switch k.kind {
		case model.RelationFollow:
			c.Following++
		case model.RelationLike:
			c.Likes++
		case model.RelationRepost:
			c.Reposts++
		}
	}
	return c, nil
}

func (f *fakeStore) CountPostRelations(_ context.Context, postID int64) (model.PostCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c model.PostCounts
	for k := range f.relations {
		if k.object != postID {
			continue
		}
		switch k.kind {
		case model.RelationLike:
			c.Likes++
		case model.RelationRepost:
			c.Reposts++
		}
	}
	return c, nil
}

// fakeProvider returns a fixed identity (or error) for every token.
type fakeProvider struct {
	identity *auth.ExternalIdentity
	err      error
	calls    int
}

func (p *fakeProvider) Introspect(context.Context, string) (*auth.ExternalIdentity, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	copied := *p.identity
	return &copied, nil
}

// testLogger discards output; tests assert on return values, not logs.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
