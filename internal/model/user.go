package model

import (
	"fmt"
	"strconv"
)

// UserID is the stable numeric identity the session layer assigns to a user
type UserID int64

// String renders the id in decimal, the form used for record and cache keys
func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseUserID parses a decimal user id
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return UserID(v), nil
}

// User is the raw connection identity delivered by the session layer
type User struct {
	ID   UserID
	Name string
}

// KickCode identifies why a user was removed from the shard
type KickCode string

const (
	KickPlayerInstantiationError KickCode = "PlayerInstantiationError"
	KickPlayerProfileUndefined   KickCode = "PlayerProfileUndefined"
)

// Message returns the user-facing text for a kick
func (k KickCode) Message() string {
	switch k {
	case KickPlayerInstantiationError:
		return "An error occurred while instantiating your player. Please rejoin the game."
	case KickPlayerProfileUndefined:
		return "Error loading player profile, please rejoin the game."
	default:
		return "You have been removed from the game."
	}
}
