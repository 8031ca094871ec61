package store

import "errors"

var (
    ErrInsufficientBalance = errors.New("insufficient balance")
    ErrNotFound            = errors.New("not found")
    ErrNotRegistered       = errors.New("account not registered")
    ErrDuplicatePending    = errors.New("pending withdrawal already exists")
    ErrAlreadyResolved     = errors.New("withdrawal already resolved")
    ErrInvalidStatus       = errors.New("invalid status")
)
