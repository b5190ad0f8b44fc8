package store

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/edoloughlin/nasc/pkg/engine"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.Load(ctx, "User", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("Load of absent instance = %v, want nil", got)
	}

	full := engine.State{"name": "Ada", "count": 2}
	if err := s.Persist(ctx, "User", "u1", nil, full); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got, err = s.Load(ctx, "User", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["name"] != "Ada" || !engine.Equal(got["count"], 2) {
		t.Errorf("Load = %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	full := engine.State{"items": []any{map[string]any{"id": "1"}}}
	s.Persist(ctx, "TodoList", "l1", nil, full)

	// Mutating the caller's copy must not touch stored state.
	full["items"].([]any)[0].(map[string]any)["id"] = "mutated"

	got, _ := s.Load(ctx, "TodoList", "l1")
	item := got["items"].([]any)[0].(map[string]any)
	if item["id"] != "1" {
		t.Errorf("stored state aliased caller's map: %v", got)
	}

	// Mutating a loaded copy must not touch stored state either.
	got["items"].([]any)[0].(map[string]any)["id"] = "also-mutated"
	again, _ := s.Load(ctx, "TodoList", "l1")
	if again["items"].([]any)[0].(map[string]any)["id"] != "1" {
		t.Errorf("loaded state aliased stored map: %v", again)
	}
}

func TestMemoryStoreKeysByTypeAndID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Persist(ctx, "User", "x", nil, engine.State{"kind": "user"})
	s.Persist(ctx, "TodoList", "x", nil, engine.State{"kind": "list"})

	got, _ := s.Load(ctx, "User", "x")
	if got["kind"] != "user" {
		t.Errorf("User:x = %v", got)
	}
	got, _ = s.Load(ctx, "TodoList", "x")
	if got["kind"] != "list" {
		t.Errorf("TodoList:x = %v", got)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	got, err := s.Load(ctx, "User", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("Load of absent instance = %v, want nil", got)
	}

	full := engine.State{"name": "Ada", "tags": []any{"a", "b"}}
	if err := s.Persist(ctx, "User", "u1", nil, full); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got, err = s.Load(ctx, "User", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("Load = %v", got)
	}
	tags, _ := got["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("tags = %v", got["tags"])
	}
}

func TestBadgerStoreOverwrite(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	s.Persist(ctx, "Counter", "c1", nil, engine.State{"count": 1})
	s.Persist(ctx, "Counter", "c1", nil, engine.State{"count": 2})

	got, _ := s.Load(ctx, "Counter", "c1")
	if !engine.Equal(got["count"], 2) {
		t.Errorf("count = %v, want 2", got["count"])
	}
}

func TestBadgerRequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}); err == nil {
		t.Errorf("OpenBadger without path succeeded")
	}
}

// fakeS3 holds objects in a map and records the keys it was asked for.
type fakeS3 struct {
	objects map[string][]byte
	puts    []string
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*params.Key] = data
	f.puts = append(f.puts, *params.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "bucket")
	ctx := context.Background()

	got, err := s.Load(ctx, "User", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("Load of absent instance = %v, want nil", got)
	}

	if err := s.Persist(ctx, "User", "u1", nil, engine.State{"name": "Ada"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(fake.puts) != 1 || fake.puts[0] != "nasc/User/u1.json" {
		t.Errorf("puts = %v, want [nasc/User/u1.json]", fake.puts)
	}

	got, err = s.Load(ctx, "User", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("Load = %v", got)
	}
}

func TestS3StoreKeyPrefix(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "bucket", WithS3KeyPrefix("state/"))
	ctx := context.Background()

	s.Persist(ctx, "TodoList", "l1", nil, engine.State{"id": "l1"})
	if _, ok := fake.objects["state/TodoList/l1.json"]; !ok {
		t.Errorf("object keys = %v, want state/TodoList/l1.json", fake.puts)
	}
}
