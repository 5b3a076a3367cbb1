package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted because these structs are
// used internally by the repository layer; handlers define
// separate response types with appropriate JSON tags.
//
// Fields:
//  ID                    – primary key identifier of the user.
//  Username              – display name, not unique.
//  Email                 – unique email address, stored lowercased.
//  PasswordHash          – bcrypt hashed password.
//  ProfilePicture        – URL/path of the profile picture, empty when unset.
//  VoiceID               – selected TTS voice, nil when not chosen yet.
//  ModelID               – selected companion model, nil when not chosen yet.
//  Role                  – role name (USER or ADMIN).
//  IsSuspended           – suspended accounts cannot log in or start calls.
//  CurrentSubscriptionID – id of the user's live ledger row, nil until registration completes.
//  CreatedAt             – timestamp of creation.
//  UpdatedAt             – timestamp of last update.
type User struct {
	ID                    uint64    // users.id
	Username              string    // users.username
	Email                 string    // users.email
	PasswordHash          string    // users.password_hash
	ProfilePicture        string    // users.profile_picture
	VoiceID               *string   // users.voice_id (nullable)
	ModelID               *string   // users.model_id (nullable)
	Role                  string    // users.role
	IsSuspended           bool      // users.is_suspended
	CurrentSubscriptionID *uint64   // users.current_subscription_id (nullable)
	CreatedAt             time.Time // users.created_at
	UpdatedAt             time.Time // users.updated_at
}

// Role name constants used in the users.role column and in JWT claims.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
