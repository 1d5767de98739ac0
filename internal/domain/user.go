// Package domain contains entity without logic, just meta-data
package domain

// UserID is the numeric account identifier assigned by the store.
// The zero value means "anonymous": a connection whose token did not
// verify. Anonymous connections may keep their socket open but every
// operation that touches chat state rejects them.
type UserID int64

const Anonymous UserID = 0

type User struct {
	ID        UserID `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (id UserID) IsAnonymous() bool { return id == Anonymous }
