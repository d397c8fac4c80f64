package session

import "github.com/theoremus-urban-solutions/surveyor-tracking/model"

// Session is the result of a successful login: who is signed in, the
// credential attached to requests, and the profile the backend returned.
type Session struct {
	Username string
	Token    Token
	Surveyor model.Surveyor
}
