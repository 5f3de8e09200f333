package chat

import (
	"errors"
	"testing"
)

func TestModeIsValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mode Mode
		want bool
	}{
		{ModeAssistant, true},
		{ModeDirect, true},
		{Mode(""), false},
		{Mode("hybrid"), false},
	}
	for _, tc := range cases {
		if got := tc.mode.IsValid(); got != tc.want {
			t.Errorf("Mode(%q).IsValid() = %v, want %v", tc.mode, got, tc.want)
		}
	}
}

func TestThreadSpecValidate(t *testing.T) {
	t.Parallel()

	if err := (ThreadSpec{Mode: ModeDirect}).Validate(); err != nil {
		t.Errorf("direct spec without assistant id should validate, got %v", err)
	}
	if err := (ThreadSpec{Mode: ModeAssistant}).Validate(); err == nil {
		t.Error("assistant spec without assistant id should fail validation")
	}
	if err := (ThreadSpec{Mode: ModeAssistant, AssistantID: "asst_1"}).Validate(); err != nil {
		t.Errorf("assistant spec with id should validate, got %v", err)
	}
	if err := (ThreadSpec{Mode: "nope"}).Validate(); err == nil {
		t.Error("unknown mode should fail validation")
	}
}

func TestHistorySeedsPriming(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	id := h.Open(ThreadSpec{Mode: ModeDirect, Priming: "You are a difficult customer."})

	msgs, ok := h.Messages(id)
	if !ok {
		t.Fatalf("Messages(%q) reported unknown thread", id)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "You are a difficult customer." {
		t.Errorf("unexpected seeded message %+v", msgs[0])
	}
}

func TestHistorySeedsOpeningAsAssistantMessage(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	id := h.Open(ThreadSpec{
		Mode:    ModeDirect,
		Priming: "You are a difficult customer.",
		Opening: "Buyurun, sizi dinliyorum.",
	})

	msgs, ok := h.Messages(id)
	if !ok {
		t.Fatalf("Messages(%q) reported unknown thread", id)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want system + opening", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Buyurun, sizi dinliyorum." {
		t.Errorf("opening seeded as %+v, want assistant message", msgs[1])
	}
}

func TestHistoryAppendAndReplay(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	id := h.Open(ThreadSpec{Mode: ModeDirect})

	if err := h.Append(id, Message{Role: "user", Content: "Merhaba"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Append(id, Message{Role: "assistant", Content: "Buyurun?"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, ok := h.Messages(id)
	if !ok {
		t.Fatal("thread not found after appends")
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "Merhaba" || msgs[1].Content != "Buyurun?" {
		t.Errorf("messages out of order: %+v", msgs)
	}

	// Mutating the returned slice must not affect the stored log.
	msgs[0].Content = "changed"
	again, _ := h.Messages(id)
	if again[0].Content != "Merhaba" {
		t.Error("Messages returned the internal slice, not a copy")
	}
}

func TestHistoryUnknownThread(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	if err := h.Append("thread_local_missing", Message{Role: "user", Content: "x"}); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("Append on unknown thread: got %v, want ErrUnknownThread", err)
	}
	if _, ok := h.Messages("thread_local_missing"); ok {
		t.Error("Messages reported an unknown thread as present")
	}
	if _, ok := h.Spec("thread_local_missing"); ok {
		t.Error("Spec reported an unknown thread as present")
	}
}

func TestHistoryIssuesUniqueIDs(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := h.Open(ThreadSpec{Mode: ModeDirect})
		if seen[id] {
			t.Fatalf("duplicate thread id %q", id)
		}
		seen[id] = true
	}
}
