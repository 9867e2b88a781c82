package mailbox

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Credentials identify a mailbox login. Secret is never logged or persisted outside the queue payload.
type Credentials struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Addr returns host:port.
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String prints the login with the secret redacted.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.Addr())
}

// Fields returns log fields for the login, never including the secret.
func (c Credentials) Fields() logrus.Fields {
	return logrus.Fields{"username": c.Username, "server": c.Addr()}
}

// MessageRef is a message read from a folder for the duration of one execution.
type MessageRef struct {
	ID      string
	Sender  string
	Subject string
	Body    string
}

// Transport opens authenticated mailbox sessions.
type Transport interface {
	Connect(ctx context.Context, creds Credentials) (Session, error)
}

// Sender submits a message on behalf of a mailbox login without opening a folder session.
type Sender interface {
	Send(ctx context.Context, creds Credentials, from string, to []string, subject string, body string) error
}

// Session is one authenticated connection. Sessions are not safe for concurrent use.
type Session interface {
	ListUnread(ctx context.Context, folder string) ([]MessageRef, error)
	Send(ctx context.Context, from string, to []string, subject string, body string) error
	Move(ctx context.Context, id string, targetFolder string) error
	Close() error
}
