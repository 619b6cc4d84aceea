package model

import "errors"

// ErrNoConversation is returned by Send when no conversation is open.
var ErrNoConversation = errors.New("no conversation open")
