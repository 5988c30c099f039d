package models

// Session binds an issued token to its signing secret and the client
// context it was issued to.
type Session struct {
	Secret    string `json:"secret"`
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

// SessionDocument is the whole session store as written to disk.
// ApplicationToken is reserved for machine-to-machine tokens and is
// carried through untouched.
type SessionDocument struct {
	UserToken        map[string]Session `json:"user_token"`
	ApplicationToken map[string]Session `json:"application_token"`
}

// Normalize replaces nil maps so callers can write without checks.
func (d *SessionDocument) Normalize() {
	if d.UserToken == nil {
		d.UserToken = make(map[string]Session)
	}

	if d.ApplicationToken == nil {
		d.ApplicationToken = make(map[string]Session)
	}
}
