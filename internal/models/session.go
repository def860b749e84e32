package models

// Session is the authenticated identity and credential of the current user.
// Its JSON form is the durable session record.
type Session struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Token   string `json:"token"`
	IsAdmin bool   `json:"isAdmin"`
}

// Valid reports whether the session carries a credential
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// Clone returns a copy that shares nothing with s
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
