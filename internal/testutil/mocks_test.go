package testutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/testutil"
)

func TestMockAgent_Name(t *testing.T) {
	mock := testutil.NewMockAgent("test-agent")
	testutil.AssertEqual(t, mock.Name(), "test-agent")
}

func TestMockAgent_Execute(t *testing.T) {
	mock := testutil.NewMockAgent("test")

	result, err := mock.Execute(context.Background(), core.ExecuteOptions{
		Prompt: "test prompt",
	})

	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, result.Output, "Mock response")
	testutil.AssertEqual(t, mock.CallCount("Execute"), 1)
}

func TestMockAgent_WithResponse(t *testing.T) {
	mock := testutil.NewMockAgent("test").WithResponse("custom response")

	result, err := mock.Execute(context.Background(), core.ExecuteOptions{
		Prompt: "test",
	})

	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, result.Output, "custom response")
}

func TestMockAgent_WithError(t *testing.T) {
	expectedErr := errors.New("test error")
	mock := testutil.NewMockAgent("test").WithError(expectedErr)

	_, err := mock.Execute(context.Background(), core.ExecuteOptions{
		Prompt: "test",
	})

	testutil.AssertError(t, err)
	if !errors.Is(err, expectedErr) {
		t.Errorf("got error %v, want %v", err, expectedErr)
	}
}

func TestMockAgent_WithExecuteFunc(t *testing.T) {
	calls := 0
	mock := testutil.NewMockAgent("test").WithExecuteFunc(
		func(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
			calls++
			return &core.ExecuteResult{Output: "custom"}, nil
		},
	)

	mock.Execute(context.Background(), core.ExecuteOptions{Prompt: "test"})
	mock.Execute(context.Background(), core.ExecuteOptions{Prompt: "test2"})

	testutil.AssertEqual(t, calls, 2)
}

func TestMockAgent_Ping(t *testing.T) {
	mock := testutil.NewMockAgent("test")
	err := mock.Ping(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, mock.CallCount("Ping"), 1)
}

func TestMockAgent_WithPingFunc(t *testing.T) {
	expectedErr := errors.New("ping failed")
	mock := testutil.NewMockAgent("test").WithPingFunc(func(ctx context.Context) error {
		return expectedErr
	})

	err := mock.Ping(context.Background())
	testutil.AssertError(t, err)
}

func TestMockAgent_Reset(t *testing.T) {
	mock := testutil.NewMockAgent("test")
	mock.Execute(context.Background(), core.ExecuteOptions{Prompt: "test"})
	mock.Ping(context.Background())

	testutil.AssertEqual(t, len(mock.Calls()), 2)

	mock.Reset()
	testutil.AssertEqual(t, len(mock.Calls()), 0)
}

func TestMockAgent_WithFailures(t *testing.T) {
	mock := testutil.NewMockAgent("flaky").WithFailures(2, testutil.ErrTest, "finally")

	for i := 0; i < 2; i++ {
		_, err := mock.Execute(context.Background(), core.ExecuteOptions{Prompt: "p"})
		testutil.AssertError(t, err)
	}
	result, err := mock.Execute(context.Background(), core.ExecuteOptions{Prompt: "last"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, result.Output, "finally")
	testutil.AssertEqual(t, mock.CallCount("Execute"), 3)
	testutil.AssertEqual(t, mock.LastPrompt(), "last")
}

func TestMockRunStore_SaveLoadList(t *testing.T) {
	store := testutil.NewMockRunStore()
	ctx := context.Background()

	older := testutil.NewTestRecord(func(r *core.RunRecord) { r.ID = "older" })
	newer := testutil.NewTestRecord(func(r *core.RunRecord) {
		r.ID = "newer"
		r.CreatedAt = r.CreatedAt.Add(time.Hour)
	})
	testutil.AssertNoError(t, store.Save(ctx, older))
	testutil.AssertNoError(t, store.Save(ctx, newer))
	testutil.AssertEqual(t, store.Saves(), 2)

	loaded, err := store.Load(ctx, "older")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, loaded.ID, core.RunID("older"))

	missing, err := store.Load(ctx, "nope")
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, missing == nil, "missing record should be nil")

	list, err := store.List(ctx, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, list, 2)
	testutil.AssertEqual(t, list[0].ID, core.RunID("newer"))
	testutil.AssertEqual(t, list[0].Succeeded, 3)

	limited, err := store.List(ctx, 1)
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, limited, 1)
}

func TestMockRunStore_WithSaveError(t *testing.T) {
	expectedErr := errors.New("save failed")
	store := testutil.NewMockRunStore().WithSaveError(expectedErr)

	err := store.Save(context.Background(), testutil.NewTestRecord())
	testutil.AssertError(t, err)
}

func TestMockRegistry_Register_Get(t *testing.T) {
	registry := testutil.NewMockRegistry()

	agent := testutil.NewMockAgent("test")
	testutil.AssertNoError(t, registry.Register("test", agent))

	got, err := registry.Get("test")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Name(), "test")
}

func TestMockRegistry_Get_NotFound(t *testing.T) {
	registry := testutil.NewMockRegistry()

	_, err := registry.Get("nonexistent")
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, core.IsCategory(err, core.ErrCatNotFound), "not found category")
}

func TestMockRegistry_List(t *testing.T) {
	registry := testutil.NewMockRegistry()
	_ = registry.Register("b", testutil.NewMockAgent("b"))
	_ = registry.Register("a", testutil.NewMockAgent("a"))

	names := registry.List()
	testutil.AssertLen(t, names, 2)
	testutil.AssertEqual(t, names[0], "a")
}
