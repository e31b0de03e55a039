package models

import "testing"

func TestToggleReaction_AddThenRemove(t *testing.T) {
	msg := ChatMessage{ID: "m1", Text: "hello"}

	added := msg.ToggleReaction("🔥", "u1")
	r, ok := added.Reactions["🔥"]
	if !ok {
		t.Fatal("reaction not added")
	}
	if r.Count != 1 || len(r.UserIDs) != 1 || r.UserIDs[0] != "u1" {
		t.Errorf("reaction after add = %+v, want count 1 with u1", r)
	}

	removed := added.ToggleReaction("🔥", "u1")
	if removed.Reactions != nil {
		t.Errorf("reactions after toggle pair = %v, want nil", removed.Reactions)
	}
}

func TestToggleReaction_CountMatchesUserSet(t *testing.T) {
	msg := ChatMessage{ID: "m1"}
	msg = msg.ToggleReaction("👍", "u1")
	msg = msg.ToggleReaction("👍", "u2")
	msg = msg.ToggleReaction("👍", "u3")
	msg = msg.ToggleReaction("👍", "u2")

	r := msg.Reactions["👍"]
	if r.Count != len(r.UserIDs) {
		t.Errorf("count %d != user set size %d", r.Count, len(r.UserIDs))
	}
	if r.Count != 2 {
		t.Errorf("count = %d, want 2", r.Count)
	}
	for _, id := range r.UserIDs {
		if id == "u2" {
			t.Error("u2 still present after second toggle")
		}
	}
}

func TestToggleReaction_AtMostOneVotePerUser(t *testing.T) {
	msg := ChatMessage{ID: "m1"}
	msg = msg.ToggleReaction("❤️", "u1")
	msg = msg.ToggleReaction("❤️", "u1")
	msg = msg.ToggleReaction("❤️", "u1")

	r := msg.Reactions["❤️"]
	if r.Count != 1 {
		t.Errorf("count after odd number of toggles = %d, want 1", r.Count)
	}
}

func TestToggleReaction_DoesNotMutateOriginal(t *testing.T) {
	original := ChatMessage{ID: "m1"}
	original = original.ToggleReaction("🎉", "u1")

	derived := original.ToggleReaction("🎉", "u2")

	origReaction := original.Reactions["🎉"]
	if origReaction.Count != 1 || len(origReaction.UserIDs) != 1 {
		t.Errorf("original mutated: %+v", origReaction)
	}
	if derived.Reactions["🎉"].Count != 2 {
		t.Errorf("derived count = %d, want 2", derived.Reactions["🎉"].Count)
	}
}

func TestToggleReaction_IndependentEmojis(t *testing.T) {
	msg := ChatMessage{ID: "m1"}
	msg = msg.ToggleReaction("👍", "u1")
	msg = msg.ToggleReaction("😂", "u1")
	msg = msg.ToggleReaction("👍", "u1")

	if _, ok := msg.Reactions["👍"]; ok {
		t.Error("👍 should be gone after toggle pair")
	}
	if msg.Reactions["😂"].Count != 1 {
		t.Error("😂 should be unaffected")
	}
}
