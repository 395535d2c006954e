package model

import "time"

// Post is the object of like and repost relations.
//
// Feed composition lives outside this service; posts here carry just enough
// to exist, be owned, and be counted.
type Post struct {
	ID        int64     `json:"postId"`
	UserID    int64     `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
