package domain

// RoomName identifies the per-pair broadcast group both participants
// of a conversation join. It is derived from the two user IDs, never
// stored.
type RoomName string
