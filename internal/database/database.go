package database

import "errors"

var (
	ErrTimeout = errors.New("operation timed out")
	ErrDump    = errors.New("database dump failed")
)

// Credentials are the connection parameters for one database.
type Credentials struct {
	Host     string
	Port     string
	User     string
	Password string
}

// String never prints the password.
func (c Credentials) String() string {
	return c.User + "@" + c.Host + ":" + c.Port
}
