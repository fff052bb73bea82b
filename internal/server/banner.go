package server

import (
	"fmt"
	"io"
	"strings"
)

// Banner describes the running server for the startup message.
type Banner struct {
	Port     string
	Env      string
	Engine   string
	DBLocal  bool
	Hostname string
}

func (b Banner) database() string {
	where := "Remote"
	if b.DBLocal {
		where = "Local"
	}
	switch b.Engine {
	case "mongodb":
		if b.DBLocal {
			return "Local MongoDB"
		}
		return "MongoDB Atlas"
	case "memory":
		return "In-memory"
	case "":
		return where
	default:
		return where + " " + b.Engine
	}
}

// Lines renders the banner without writing it anywhere.
func (b Banner) Lines() []string {
	host := b.Hostname
	if host == "" {
		host = "localhost"
	}
	env := b.Env
	if env == "" {
		env = "development"
	}
	rule := "   " + strings.Repeat("=", 40)
	return []string{
		"",
		rule,
		"   Biometric Attendance System API",
		rule,
		fmt.Sprintf("   Server:      http://%s:%s", host, b.Port),
		fmt.Sprintf("   API:         http://%s:%s/api", host, b.Port),
		fmt.Sprintf("   Environment: %s", env),
		fmt.Sprintf("   Database:    %s", b.database()),
		rule,
		"",
	}
}

// WriteTo prints the banner to w.
func (b Banner) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, strings.Join(b.Lines(), "\n")+"\n")
	return int64(n), err
}
