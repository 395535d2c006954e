package model

import "time"

// RelationKind names the action a subject performed on an object.
type RelationKind string

const (
	RelationLike   RelationKind = "like"
	RelationRepost RelationKind = "repost"
	RelationFollow RelationKind = "follow"
)

// Valid reports whether k is one of the known kinds.
func (k RelationKind) Valid() bool {
	switch k {
	case RelationLike, RelationRepost, RelationFollow:
		return true
	}
	return false
}

// TargetsUser reports whether ObjectID refers to a user (follow) rather than
// a post (like, repost).
func (k RelationKind) TargetsUser() bool {
	return k == RelationFollow
}

// Relation is a directed binary fact: SubjectID performed Kind on ObjectID.
// At most one row exists per (SubjectID, ObjectID, Kind).
type Relation struct {
	SubjectID int64        `json:"subjectId"`
	ObjectID  int64        `json:"objectId"`
	Kind      RelationKind `json:"kind"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RelationCounts summarises a user's place in the graph.
type RelationCounts struct {
	Followers int64 `json:"followersCount"`
	Following int64 `json:"followingCount"`
	Likes     int64 `json:"likesCount"`
	Reposts   int64 `json:"repostsCount"`
}

// PostCounts summarises the relations a post has received.
type PostCounts struct {
	Likes   int64 `json:"likesCount"`
	Reposts int64 `json:"repostsCount"`
}
