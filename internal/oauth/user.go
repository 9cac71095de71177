package oauth

import "github.com/dropDatabas3/doorman/internal/config"

// User es la vista mínima del end-user que necesita este servicio:
// claims para userinfo y el plan para quotas. La identidad real (login,
// password, sesiones) vive upstream.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Plan          string
}

type Directory interface {
	ByID(id string) (*User, bool)
}

// StaticDirectory es el directorio respaldado por config.
type StaticDirectory struct {
	byID map[string]*User
}

func NewStaticDirectory(users []User) *StaticDirectory {
	d := &StaticDirectory{byID: make(map[string]*User, len(users))}
	for i := range users {
		u := users[i]
		d.byID[u.ID] = &u
	}
	return d
}

func DirectoryFromConfig(us []config.User) *StaticDirectory {
	out := make([]User, 0, len(us))
	for _, u := range us {
		out = append(out, User{
			ID:            u.ID,
			Email:         u.Email,
			EmailVerified: u.EmailVerified,
			Name:          u.Name,
			Plan:          u.Plan,
		})
	}
	return NewStaticDirectory(out)
}

func (d *StaticDirectory) ByID(id string) (*User, bool) {
	u, ok := d.byID[id]
	return u, ok
}
