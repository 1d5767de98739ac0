package chat

import (
	"testing"

	"github.com/rynok/market/internal/domain"
)

func TestRoomNameSymmetric(t *testing.T) {
	cases := []struct {
		a, b domain.UserID
		want domain.RoomName
	}{
		{1, 2, "chat_1_2"},
		{2, 1, "chat_1_2"},
		{42, 7, "chat_7_42"},
		{7, 42, "chat_7_42"},
		{5, 5, "chat_5_5"},
	}
	for _, tc := range cases {
		if got := RoomName(tc.a, tc.b); got != tc.want {
			t.Errorf("RoomName(%d, %d) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
		if RoomName(tc.a, tc.b) != RoomName(tc.b, tc.a) {
			t.Errorf("RoomName(%d, %d) not symmetric", tc.a, tc.b)
		}
	}
}
