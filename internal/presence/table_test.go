package presence

import (
	"testing"

	"whiteboard-backend/pkg/protocol"
)

func TestJoinAssignsDistinctColors(t *testing.T) {
	tbl := NewTable()

	seen := make(map[string]bool)
	for i := 0; i < len(Palette); i++ {
		entry, _ := tbl.Join("b1", string(rune('a'+i)), "s"+string(rune('a'+i)), protocol.PresenceUser{FullName: "user"})
		if seen[entry.Color] {
			t.Fatalf("color %s assigned twice before palette exhausted", entry.Color)
		}
		seen[entry.Color] = true
	}

	// ninth user wraps around; assignment is best-effort, not unique
	entry, roster := tbl.Join("b1", "i", "si", protocol.PresenceUser{FullName: "user"})
	if !seen[entry.Color] {
		t.Fatalf("wrapped color %s should come from the palette", entry.Color)
	}
	if len(roster) != len(Palette)+1 {
		t.Fatalf("expected %d entries, got %d", len(Palette)+1, len(roster))
	}
}

func TestRejoinSameSocketReplacesEntry(t *testing.T) {
	tbl := NewTable()
	tbl.Join("b1", "u1", "s1", protocol.PresenceUser{FullName: "Old Name"})
	_, roster := tbl.Join("b1", "u1", "s1", protocol.PresenceUser{FullName: "New Name"})

	if len(roster) != 1 {
		t.Fatalf("rejoin must replace, not duplicate: %d entries", len(roster))
	}
	if roster[0].FullName != "New Name" {
		t.Fatalf("expected refreshed entry, got %q", roster[0].FullName)
	}
}

func TestMultiTabUserTrackedPerConnection(t *testing.T) {
	tbl := NewTable()
	tbl.Join("b1", "u1", "tab-1", protocol.PresenceUser{FullName: "Ana"})
	tbl.Join("b1", "u1", "tab-2", protocol.PresenceUser{FullName: "Ana"})
	tbl.Join("b1", "u2", "s3", protocol.PresenceUser{FullName: "Ben"})

	if got := len(tbl.Roster("b1")); got != 3 {
		t.Fatalf("roster tracks connections, expected 3, got %d", got)
	}
	if got := len(tbl.ActiveUsers("b1")); got != 2 {
		t.Fatalf("active users dedup by user id, expected 2, got %d", got)
	}

	// closing one tab keeps the user listed
	if _, changed := tbl.Leave("b1", "tab-1"); !changed {
		t.Fatal("leave should report a change")
	}
	users := tbl.ActiveUsers("b1")
	if len(users) != 2 {
		t.Fatalf("user still has a live tab, expected 2 users, got %d", len(users))
	}

	// closing the last tab finally drops the user
	tbl.Leave("b1", "tab-2")
	users = tbl.ActiveUsers("b1")
	if len(users) != 1 || users[0].UserID != "u2" {
		t.Fatalf("expected only u2 left, got %+v", users)
	}
}

func TestLeaveUnknownSocketIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Join("b1", "u1", "s1", protocol.PresenceUser{FullName: "Ana"})

	roster, changed := tbl.Leave("b1", "ghost")
	if changed {
		t.Fatal("unknown socket should not change the roster")
	}
	if len(roster) != 1 {
		t.Fatalf("roster should be intact, got %d", len(roster))
	}

	if _, changed := tbl.Leave("no-such-board", "s1"); changed {
		t.Fatal("unknown board should not change anything")
	}
}

func TestEmptyBoardPruned(t *testing.T) {
	tbl := NewTable()
	tbl.Join("b1", "u1", "s1", protocol.PresenceUser{FullName: "Ana"})
	tbl.Leave("b1", "s1")

	if got := tbl.Roster("b1"); got != nil {
		t.Fatalf("empty board should be dropped, got %+v", got)
	}
}

func TestActiveUsersNeverNil(t *testing.T) {
	tbl := NewTable()
	if tbl.ActiveUsers("empty") == nil {
		t.Fatal("active users must serialize as an array, never null")
	}
}
