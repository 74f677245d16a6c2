package model

import "time"

// SlotLock is an advisory lock serializing concurrent reservation
// attempts on one slot. It shares the slot's deterministic id, carries a
// short TTL, and is deleted on every exit path of the attempt; the TTL
// index reaps locks abandoned by a crashed holder.
type SlotLock struct {
	ID        string    `json:"id" bson:"_id"`
	Owner     string    `json:"owner" bson:"owner"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
