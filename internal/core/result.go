package core

import "errors"

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const MessageExpenseAdded = "Expense added successfully"

// Result is the tagged outcome returned to remote callers instead of a raised error.
// Callers must check Status before reading ID.
type Result struct {
	Status  Status `json:"status"`
	ID      int64  `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Created builds the success result of an insert.
func Created(id int64) Result {
	return Result{Status: StatusSuccess, ID: id, Message: MessageExpenseAdded}
}

// Failure builds an error result carrying err's message.
func Failure(err error) Result {
	if err == nil {
		err = ErrUnknown
	}
	return Result{Status: StatusError, Message: err.Error()}
}

func (r Result) IsError() bool {
	return r.Status == StatusError
}

var ErrUnknown = errors.New("unknown error")
