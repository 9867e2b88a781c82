package mailerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a failure so retry policies can decide per category.
type Kind string

const (
	KindUnknown  Kind = "unknown"
	KindAuth     Kind = "auth"
	KindNetwork  Kind = "network"
	KindFolder   Kind = "folder"
	KindSend     Kind = "send"
	KindMove     Kind = "move"
	KindTemplate Kind = "template"
)

var kinds = []Kind{KindUnknown, KindAuth, KindNetwork, KindFolder, KindSend, KindMove, KindTemplate}

// ParseKind resolves a configured kind name.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown error kind %q", name)
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and the operation that failed. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost kind attached to err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Auth(op string, err error) error     { return New(KindAuth, op, err) }
func Network(op string, err error) error  { return New(KindNetwork, op, err) }
func Folder(op string, err error) error   { return New(KindFolder, op, err) }
func Send(op string, err error) error     { return New(KindSend, op, err) }
func Move(op string, err error) error     { return New(KindMove, op, err) }
func Template(op string, err error) error { return New(KindTemplate, op, err) }
