package domain

import "maps"

// Account is one upstream credential set. JSON keys match the persisted pool
// layout so previously stored pools load unchanged.
type Account struct {
	ID            string            `json:"uid"`
	DisplayName   string            `json:"name"`
	AvatarURL     string            `json:"face"`
	Cookies       map[string]string `json:"cookies"`
	Valid         bool              `json:"valid"`
	LastErrorCode *int              `json:"status_code"`
}

func (a Account) Clone() Account {
	a.Cookies = maps.Clone(a.Cookies)
	if a.LastErrorCode != nil {
		code := *a.LastErrorCode
		a.LastErrorCode = &code
	}
	return a
}
