package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"minitwit/internal/config"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqlStore, err := Open(ctx, config.Config{
		Driver:   config.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "minitwit.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	gormStore, err := OpenGormSQLite(ctx, filepath.Join(t.TempDir(), "minitwit-gorm.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gormStore.Close() })

	return map[string]Store{"sql": sqlStore, "gorm": gormStore}
}

func mustCreateUser(t *testing.T, s Store, name string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), name, name+"@example.com", "hash-"+name)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return id
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			id := mustCreateUser(t, s, "foo")

			got, err := s.UserID(ctx, "foo")
			if err != nil || got != id {
				t.Fatalf("UserID = %d, %v; want %d", got, err, id)
			}

			u, err := s.UserByID(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if u.Username != "foo" || u.Email != "foo@example.com" || u.PwHash != "hash-foo" {
				t.Errorf("unexpected user %+v", u)
			}

			u, err = s.UserByName(ctx, "foo")
			if err != nil || u.UserID != id {
				t.Fatalf("UserByName = %+v, %v", u, err)
			}

			if _, err := s.UserID(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if _, err := s.UserByID(ctx, id+100); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			if _, err := s.CreateUser(ctx, "foo", "other@example.com", "x"); err == nil {
				t.Error("expected duplicate username to fail")
			}
		})
	}
}

func TestFollowers(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			foo := mustCreateUser(t, s, "foo")
			bar := mustCreateUser(t, s, "bar")
			baz := mustCreateUser(t, s, "baz")

			if ok, err := s.IsFollowing(ctx, foo, bar); err != nil || ok {
				t.Fatalf("IsFollowing before follow = %v, %v", ok, err)
			}

			for i := 0; i < 2; i++ {
				if err := s.Follow(ctx, foo, bar); err != nil {
					t.Fatalf("follow #%d: %v", i+1, err)
				}
			}
			if err := s.Follow(ctx, foo, baz); err != nil {
				t.Fatal(err)
			}

			if ok, err := s.IsFollowing(ctx, foo, bar); err != nil || !ok {
				t.Fatalf("IsFollowing after follow = %v, %v", ok, err)
			}
			if ok, _ := s.IsFollowing(ctx, bar, foo); ok {
				t.Error("follow relation must not be symmetric")
			}

			names, err := s.Following(ctx, foo, 10)
			if err != nil {
				t.Fatal(err)
			}
			if !equal(names, []string{"bar", "baz"}) {
				t.Errorf("Following = %v", names)
			}
			names, _ = s.Following(ctx, foo, 1)
			if len(names) != 1 {
				t.Errorf("limit not applied: %v", names)
			}

			if err := s.Unfollow(ctx, foo, bar); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.IsFollowing(ctx, foo, bar); ok {
				t.Error("still following after unfollow")
			}
			if err := s.Unfollow(ctx, foo, bar); err != nil {
				t.Errorf("unfollow of missing relation: %v", err)
			}
		})
	}
}

func TestTimelines(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			foo := mustCreateUser(t, s, "foo")
			bar := mustCreateUser(t, s, "bar")

			add := func(author int64, text string, at int64) int64 {
				id, err := s.AddMessage(ctx, author, text, at)
				if err != nil {
					t.Fatal(err)
				}
				return id
			}
			add(foo, "foo 1", 100)
			add(bar, "bar 1", 200)
			flagged := add(foo, "foo flagged", 300)
			add(foo, "foo 2", 400)

			if err := s.FlagMessage(ctx, flagged); err != nil {
				t.Fatal(err)
			}
			if err := s.FlagMessage(ctx, flagged+100); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			public, err := s.PublicTimeline(ctx, 30)
			if err != nil {
				t.Fatal(err)
			}
			if want := []string{"foo 2", "bar 1", "foo 1"}; !equal(texts(public), want) {
				t.Errorf("public = %v, want %v", texts(public), want)
			}
			if public[0].Username != "foo" || public[0].Email != "foo@example.com" || public[0].AuthorID != foo {
				t.Errorf("author not joined: %+v", public[0])
			}

			public, _ = s.PublicTimeline(ctx, 2)
			if len(public) != 2 {
				t.Errorf("limit not applied: %v", texts(public))
			}

			user, err := s.UserTimeline(ctx, bar, 30)
			if err != nil {
				t.Fatal(err)
			}
			if !equal(texts(user), []string{"bar 1"}) {
				t.Errorf("user timeline = %v", texts(user))
			}

			home, _ := s.HomeTimeline(ctx, bar, 30)
			if !equal(texts(home), []string{"bar 1"}) {
				t.Errorf("home before follow = %v", texts(home))
			}
			if err := s.Follow(ctx, bar, foo); err != nil {
				t.Fatal(err)
			}
			home, _ = s.HomeTimeline(ctx, bar, 30)
			if want := []string{"foo 2", "bar 1", "foo 1"}; !equal(texts(home), want) {
				t.Errorf("home after follow = %v, want %v", texts(home), want)
			}

			all, err := s.AllMessages(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 4 || !all[2].Flagged {
				t.Errorf("AllMessages should include flagged rows: %+v", all)
			}
		})
	}
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "minitwit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 2; i++ {
		if err := s.InitSchema(ctx, ""); err != nil {
			t.Fatalf("init #%d: %v", i+1, err)
		}
	}
	if err := s.InitSchema(ctx, filepath.Join(t.TempDir(), "missing.sql")); err == nil {
		t.Error("expected error for missing schema file")
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			mustCreateUser(t, s, "foo")
			if _, err := s.CreateUser(ctx, "foo", "other@example.com", "x"); !errors.Is(err, ErrUserExists) {
				t.Errorf("duplicate CreateUser err = %v, want ErrUserExists", err)
			}
		})
	}
}

func TestCreateUserConcurrent(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 20
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = s.CreateUser(ctx, "dup", "dup@example.com", "hash")
				}(i)
			}
			wg.Wait()

			created := 0
			for _, err := range errs {
				switch {
				case err == nil:
					created++
				case errors.Is(err, ErrUserExists):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			if created != 1 {
				t.Errorf("%d users created, want 1", created)
			}
		})
	}
}
