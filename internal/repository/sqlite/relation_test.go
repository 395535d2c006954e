package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

func TestToggleRelation_TwiceReturnsToOrigin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "liker")
	p := createTestPost(t, db, u.ID, "post")

	for i, want := range []bool{true, false, true, false} {
		got, err := db.ToggleRelation(ctx, u.ID, p.ID, model.RelationLike)
		if err != nil {
			t.Fatalf("toggle %d: error = %v", i, err)
		}
		if got != want {
			t.Fatalf("toggle %d: active = %v, want %v", i, got, want)
		}
		exists, err := db.RelationExists(ctx, u.ID, p.ID, model.RelationLike)
		if err != nil {
			t.Fatalf("RelationExists() error = %v", err)
		}
		if exists != want {
			t.Fatalf("toggle %d: RelationExists = %v, want %v", i, exists, want)
		}
	}
}

func TestToggleRelation_KindsAreIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "user")
	p := createTestPost(t, db, u.ID, "post")

	if _, err := db.ToggleRelation(ctx, u.ID, p.ID, model.RelationLike); err != nil {
		t.Fatalf("like: %v", err)
	}
	reposted, err := db.ToggleRelation(ctx, u.ID, p.ID, model.RelationRepost)
	if err != nil {
		t.Fatalf("repost: %v", err)
	}
	if !reposted {
		t.Error("repost should be independent of like")
	}

	counts, err := db.CountPostRelations(ctx, p.ID)
	if err != nil {
		t.Fatalf("CountPostRelations() error = %v", err)
	}
	if counts != (model.PostCounts{Likes: 1, Reposts: 1}) {
		t.Errorf("CountPostRelations() = %+v, want 1 like and 1 repost", counts)
	}
}

func TestToggleRelation_MissingObject(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "user")

	tests := []struct {
		name string
		kind model.RelationKind
	}{
		{"like on missing post", model.RelationLike},
		{"repost on missing post", model.RelationRepost},
		{"follow of missing user", model.RelationFollow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.ToggleRelation(ctx, u.ID, 9999, tt.kind)
			if !errors.Is(err, apperror.ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestToggleRelation_SelfFollowRejectedBySchema(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "narcissus")

	_, err := db.ToggleRelation(ctx, u.ID, u.ID, model.RelationFollow)
	if !errors.Is(err, apperror.ErrSelfRelation) {
		t.Fatalf("error = %v, want ErrSelfRelation", err)
	}

	exists, err := db.RelationExists(ctx, u.ID, u.ID, model.RelationFollow)
	if err != nil {
		t.Fatalf("RelationExists() error = %v", err)
	}
	if exists {
		t.Error("self-follow row was written")
	}
}

func TestCountUserRelations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	p := createTestPost(t, db, bob.ID, "post")

	toggles := []struct {
		subject, object int64
		kind            model.RelationKind
	}{
		{bob.ID, alice.ID, model.RelationFollow},
		{carol.ID, alice.ID, model.RelationFollow},
		{alice.ID, bob.ID, model.RelationFollow},
		{alice.ID, p.ID, model.RelationLike},
		{alice.ID, p.ID, model.RelationRepost},
	}
	for _, tg := range toggles {
		if _, err := db.ToggleRelation(ctx, tg.subject, tg.object, tg.kind); err != nil {
			t.Fatalf("ToggleRelation(%d, %d, %s) error = %v", tg.subject, tg.object, tg.kind, err)
		}
	}

	got, err := db.CountUserRelations(ctx, alice.ID)
	if err != nil {
		t.Fatalf("CountUserRelations() error = %v", err)
	}
	want := model.RelationCounts{Followers: 2, Following: 1, Likes: 1, Reposts: 1}
	if got != want {
		t.Errorf("CountUserRelations() = %+v, want %+v", got, want)
	}
}

// TestToggleRelation_ConcurrentParity fires N toggles at the same row from N
// goroutines against a file database (real multi-connection locking). Each
// toggle either commits or reports RelationConflict, which is retried. The
// row must end present iff N is odd, and there is never more than one row.
func TestToggleRelation_ConcurrentParity(t *testing.T) {
	for _, n := range []int{7, 8} {
		t.Run("", func(t *testing.T) {
			db := newFileTestDB(t)
			ctx := context.Background()
			u := createTestUser(t, db, "racer")
			p := createTestPost(t, db, u.ID, "contested")

			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						_, err := db.ToggleRelation(ctx, u.ID, p.ID, model.RelationLike)
						if errors.Is(err, apperror.ErrRelationConflict) {
							continue
						}
						errs <- err
						return
					}
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				if err != nil {
					t.Fatalf("ToggleRelation() error = %v", err)
				}
			}

			var rows int
			err := db.conn.QueryRow(
				`SELECT COUNT(*) FROM relations WHERE subject_id = ? AND object_id = ? AND kind = 'like'`,
				u.ID, p.ID,
			).Scan(&rows)
			if err != nil {
				t.Fatalf("counting rows: %v", err)
			}
			if want := n % 2; rows != want {
				t.Errorf("after %d toggles: rows = %d, want %d", n, rows, want)
			}
		})
	}
}
