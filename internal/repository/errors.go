// Package repository defines error types that are reused across multiple
// repositories. These sentinel values let higher layers such as handlers
// and the metering engine distinguish failure scenarios: ErrNotFound marks
// a missing row, ErrVersionConflict marks a ledger write that lost a
// compare-and-swap race and must be retried against a fresh read.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist. Handlers
// translate it into an HTTP 404; the metering engine treats a vanished
// ledger row as a signal to terminate the session.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned on registration when the email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrVersionConflict is returned by SubscriptionRepo.Save when the row's
// version no longer matches the one the caller read. The record was
// modified concurrently (top-up during a live call, tick racing a plan
// switch); callers re-read and retry or give up.
var ErrVersionConflict = errors.New("subscription version conflict")
