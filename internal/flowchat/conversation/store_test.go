package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%08d-0000-4000-8000-000000000000", n)
	}
}

func openTestStore(t *testing.T, st storage.Storage, opts ...Option) *Store {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now), WithIDGenerator(sequentialIDs())}, opts...)
	s, err := Open(st, opts...)
	require.NoError(t, err)
	return s
}

func userMsg(content string) flowchat.Message {
	return flowchat.Message{Role: flowchat.RoleUser, Content: content}
}

func assistantMsg(content string) flowchat.Message {
	return flowchat.Message{Role: flowchat.RoleAssistant, Content: content}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "short", content: "Hello", want: "Hello"},
		{name: "exactly 30", content: strings.Repeat("a", 30), want: strings.Repeat("a", 30)},
		{name: "truncated", content: "Write a function to reverse a string", want: "Write a function to reverse a..."},
		{name: "newlines collapsed", content: "  line one\n\nline two  ", want: "line one line two"},
		{name: "multibyte", content: strings.Repeat("न", 31), want: strings.Repeat("न", 30) + "..."},
		{name: "blank", content: " \n ", want: PlaceholderTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}

func TestAppendMessageCreatesConversation(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	assert.Nil(t, s.Active())

	msg, convID, err := s.AppendMessage(userMsg("Write a function to reverse a string"), true)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	active := s.Active()
	require.NotNil(t, active)
	assert.Equal(t, convID, active.ID)
	assert.Equal(t, "Write a function to reverse a...", active.Title)
	assert.Len(t, active.Messages, 1)

	_, sameID, err := s.AppendMessage(assistantMsg("```js\nx\n```"), false)
	require.NoError(t, err)
	assert.Equal(t, convID, sameID)

	active = s.Active()
	require.Len(t, active.Messages, 2)
	assert.Equal(t, flowchat.RoleUser, active.Messages[0].Role)
	assert.Equal(t, flowchat.RoleAssistant, active.Messages[1].Role)
	assert.Equal(t, "Write a function to reverse a...", active.Title, "title is set once")
	assert.True(t, active.Timestamp.After(active.CreatedAt))
}

func TestAppendAssistantFirstUsesPlaceholder(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	_, _, err := s.AppendMessage(assistantMsg("Hi, how can I help?"), false)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderTitle, s.Active().Title)
}

func TestAppendMessageRejectsRole(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	_, _, err := s.AppendMessage(flowchat.Message{Role: "system", Content: "x"}, true)
	assert.Error(t, err)
	assert.Empty(t, s.List())
}

func TestStoreHandsOutCopies(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	_, id, err := s.AppendMessage(userMsg("hello"), true)
	require.NoError(t, err)

	c, err := s.Get(id)
	require.NoError(t, err)
	c.Messages[0].Content = "mutated"
	c.Messages = append(c.Messages, userMsg("extra"))

	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)
	assert.Len(t, again.Messages, 1)
}

func TestNewChatAndSelect(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	_, first, err := s.AppendMessage(userMsg("first"), true)
	require.NoError(t, err)

	require.NoError(t, s.NewChat())
	assert.Nil(t, s.Active())
	assert.Len(t, s.List(), 1, "new chat does not create a conversation")

	_, second, err := s.AppendMessage(userMsg("second"), true)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Len(t, s.List(), 2)

	require.NoError(t, s.Select(first))
	assert.Equal(t, first, s.ActiveID())

	err = s.Select("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, first, s.ActiveID())
}

func TestDeletePolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     DeletePolicy
		wantActive func(ids []string) string
	}{
		{name: "clear", policy: DeleteClear, wantActive: func([]string) string { return "" }},
		{name: "most recent", policy: DeleteMostRecent, wantActive: func(ids []string) string { return ids[1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t, storage.NewMemoryStorage(), WithDeletePolicy(tt.policy))
			var ids []string
			for _, text := range []string{"one", "two", "three"} {
				require.NoError(t, s.NewChat())
				_, id, err := s.AppendMessage(userMsg(text), true)
				require.NoError(t, err)
				ids = append(ids, id)
			}

			// deleting an inactive conversation keeps the pointer
			require.NoError(t, s.Select(ids[2]))
			require.NoError(t, s.Delete(ids[0]))
			assert.Equal(t, ids[2], s.ActiveID())

			require.NoError(t, s.Delete(ids[2]))
			assert.Equal(t, tt.wantActive(ids), s.ActiveID())
			if id := s.ActiveID(); id != "" {
				_, err := s.Get(id)
				assert.NoError(t, err)
			}

			assert.ErrorIs(t, s.Delete(ids[2]), ErrNotFound)
		})
	}
}

func TestDeleteLastRemovesPersistedKeys(t *testing.T) {
	st := storage.NewMemoryStorage()
	s := openTestStore(t, st, WithDeletePolicy(DeleteMostRecent))
	_, id, err := s.AppendMessage(userMsg("only"), true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{storage.KeyConversations, storage.KeyActiveConversation}, st.Keys())

	require.NoError(t, s.Delete(id))
	assert.Empty(t, st.Keys())
	assert.Nil(t, s.Active())
}

// flakyStorage fails every write while fail is set.
type flakyStorage struct {
	*storage.MemoryStorage
	fail bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyStorage) Set(key string, value []byte) error {
	if f.fail {
		return errDiskFull
	}
	return f.MemoryStorage.Set(key, value)
}

func (f *flakyStorage) Delete(key string) error {
	if f.fail {
		return errDiskFull
	}
	return f.MemoryStorage.Delete(key)
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	st := &flakyStorage{MemoryStorage: storage.NewMemoryStorage()}
	s := openTestStore(t, st)

	st.fail = true
	_, _, err := s.AppendMessage(userMsg("hello"), true)
	require.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, s.List())
	assert.Empty(t, s.ActiveID())
	assert.Empty(t, st.Keys())

	st.fail = false
	_, id, err := s.AppendMessage(userMsg("first"), true)
	require.NoError(t, err)
	_, _, err = s.AppendMessage(assistantMsg("reply"), false)
	require.NoError(t, err)

	st.fail = true
	_, _, err = s.AppendMessage(userMsg("lost"), true)
	assert.ErrorIs(t, err, errDiskFull)
	assert.ErrorIs(t, s.Rename(id, "Renamed"), errDiskFull)
	assert.ErrorIs(t, s.NewChat(), errDiskFull)
	assert.ErrorIs(t, s.Delete(id), errDiskFull)
	assert.ErrorIs(t, s.Clear(), errDiskFull)

	assert.Equal(t, id, s.ActiveID())
	conv, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "first", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "reply", conv.Messages[1].Content)

	// The next successful write must not carry any of the failed changes.
	st.fail = false
	require.NoError(t, s.Select(id))
	reopened := openTestStore(t, st)
	conv, err = reopened.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "first", conv.Title)
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, id, reopened.ActiveID())
}

func TestPersistenceRoundTrip(t *testing.T) {
	st, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	s := openTestStore(t, st)
	_, _, err = s.AppendMessage(userMsg("What is the capital of France?"), true)
	require.NoError(t, err)
	_, _, err = s.AppendMessage(assistantMsg("Paris"), false)
	require.NoError(t, err)
	require.NoError(t, s.NewChat())
	_, second, err := s.AppendMessage(userMsg("Write a haiku"), true)
	require.NoError(t, err)

	reopened, err := Open(st)
	require.NoError(t, err)

	if diff := cmp.Diff(s.List(), reopened.List()); diff != "" {
		t.Errorf("conversations differ after reload (-want +got):\n%s", diff)
	}
	assert.Equal(t, second, reopened.ActiveID())
}

func TestOpenDropsDanglingActivePointer(t *testing.T) {
	st := storage.NewMemoryStorage()
	require.NoError(t, storage.SetJSON(st, storage.KeyActiveConversation, "gone"))

	s, err := Open(st)
	require.NoError(t, err)
	assert.Empty(t, s.ActiveID())
}

func TestOpenCorruptData(t *testing.T) {
	st := storage.NewMemoryStorage()
	require.NoError(t, st.Set(storage.KeyConversations, []byte("{not json")))
	_, err := Open(st)
	assert.Error(t, err)
}

func TestListOrdersByLastModified(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	_, a, _ := s.AppendMessage(userMsg("a"), true)
	require.NoError(t, s.NewChat())
	_, b, _ := s.AppendMessage(userMsg("b"), true)

	require.NoError(t, s.Select(a))
	_, _, err := s.AppendMessage(assistantMsg("reply"), false)
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, b, list[1].ID)
}

func TestFind(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage(), WithIDGenerator(func() func() string {
		ids := []string{"m1", "abcd1111", "m2", "abcd2222", "m3", "ffff0000"}
		return func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}
	}()))
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.NewChat())
		_, _, err := s.AppendMessage(userMsg(text), true)
		require.NoError(t, err)
	}

	c, err := s.Find("ffff")
	require.NoError(t, err)
	assert.Equal(t, "three", c.Title)

	c, err = s.Find("abcd1111")
	require.NoError(t, err)
	assert.Equal(t, "one", c.Title)

	c, err = s.Find("latest")
	require.NoError(t, err)
	assert.Equal(t, "ffff0000", c.ID)

	_, err = s.Find("abcd")
	var ambiguous *AmbiguousIDError
	require.True(t, errors.As(err, &ambiguous))
	assert.Len(t, ambiguous.Matches, 2)
	assert.Contains(t, err.Error(), "flowchat conversations list")

	_, err = s.Find("abc")
	assert.ErrorContains(t, err, "at least 4 characters")

	_, err = s.Find("9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameAndClear(t *testing.T) {
	st := storage.NewMemoryStorage()
	s := openTestStore(t, st)
	_, id, err := s.AppendMessage(userMsg("hello"), true)
	require.NoError(t, err)

	require.NoError(t, s.Rename(id, "  Greeting  "))
	c, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", c.Title)

	assert.Error(t, s.Rename(id, " "))
	assert.ErrorIs(t, s.Rename("nope", "x"), ErrNotFound)

	require.NoError(t, s.Clear())
	assert.Empty(t, s.List())
	assert.Empty(t, st.Keys())
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeleteClear, p)

	p, err = ParseDeletePolicy("most_recent")
	require.NoError(t, err)
	assert.Equal(t, DeleteMostRecent, p)

	_, err = ParseDeletePolicy("random")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	s := openTestStore(t, storage.NewMemoryStorage())
	_, id, err := s.AppendMessage(userMsg("Write js"), true)
	require.NoError(t, err)
	_, _, err = s.AppendMessage(assistantMsg("```js\nconsole.log(1)\n```"), false)
	require.NoError(t, err)
	conv, err := s.Get(id)
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, conv, FormatJSON))
		var got Conversation
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		if diff := cmp.Diff(*conv, got); diff != "" {
			t.Errorf("json export mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, conv, FormatYAML))
		var got Conversation
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, conv.Title, got.Title)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, conv.Messages[1].Content, got.Messages[1].Content)
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, conv, FormatMarkdown))
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "# Write js\n"))
		assert.Contains(t, out, "## USER")
		assert.Contains(t, out, "## ASSISTANT")
		assert.Contains(t, out, "```js\nconsole.log(1)\n```")
	})

	_, err = ParseFormat("xml")
	assert.Error(t, err)
	f, err := ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)
}
