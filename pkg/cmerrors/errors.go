// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cmerrors collects the typed error kinds defined by the
// persistence core's error-handling design (spec §7). Every kind here is a
// concrete struct implementing error, usable with errors.As; none of them
// are detected by string-matching a message.
package cmerrors

import "fmt"

// SchemaMismatch is returned by brick file I/O when an on-disk brick's
// element type, rank, shape or fixed byte length disagrees with what the
// parameter expects (the chunk extent is not compared). Fatal to
// the operation; never retried.
type SchemaMismatch struct {
	BrickID string
	Reason  string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch for brick %s: %s", e.BrickID, e.Reason)
}

// MissingBrickFile is returned when the manifest references a brick file
// that is absent on disk. Fatal.
type MissingBrickFile struct {
	BrickID string
	Path    string
}

func (e *MissingBrickFile) Error() string {
	return fmt.Sprintf("missing brick file for %s at %s", e.BrickID, e.Path)
}

// DomainShrink is returned by expand_domain when the proposed new extent is
// smaller than the current extent on the temporal axis. Fatal; not retried.
type DomainShrink struct {
	Axis int
	From int64
	To   int64
}

func (e *DomainShrink) Error() string {
	return fmt.Sprintf("domain shrink on axis %d: %d -> %d", e.Axis, e.From, e.To)
}

// NonTemporalChange is returned by expand_domain when a non-temporal axis
// (axis != 0) would change extent. Fatal; not retried.
type NonTemporalChange struct {
	Axis int
	From int64
	To   int64
}

func (e *NonTemporalChange) Error() string {
	return fmt.Sprintf("non-temporal axis %d changed extent: %d -> %d", e.Axis, e.From, e.To)
}

// SelectionRankMismatch is returned when a selection's rank (after
// broadcasting) does not match the parameter's rank. Indicates a caller
// bug; fatal.
type SelectionRankMismatch struct {
	SelectionRank int
	ParameterRank int
}

func (e *SelectionRankMismatch) Error() string {
	return fmt.Sprintf("selection rank %d does not match parameter rank %d", e.SelectionRank, e.ParameterRank)
}

// OutOfBrick indicates the slice calculator was asked to resolve an integer
// axis selector against a brick that does not contain it. This should never
// occur if the caller filtered bricks via the brick index first; it
// signals a bug in the index or calculator, not user input.
type OutOfBrick struct {
	Axis  int
	Index int64
}

func (e *OutOfBrick) Error() string {
	return fmt.Sprintf("index %d on axis %d is out of the brick's range", e.Index, e.Axis)
}

// NoOverlap indicates a list or range axis selector has no intersection
// with a brick that the caller believed it did (again, a caller/index bug,
// not a normal runtime condition for correctly filtered bricks).
type NoOverlap struct {
	Axis int
}

func (e *NoOverlap) Error() string {
	return fmt.Sprintf("axis %d selector has no overlap with the brick", e.Axis)
}

// WorkerFailure wraps any unexpected condition encountered by a worker
// while performing a write. Retried by the dispatcher up to MAX_RETRIES
// times, then surfaced to the user-supplied failure callback.
type WorkerFailure struct {
	BrickKey string
	Cause    error
}

func (e *WorkerFailure) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("worker failure for brick %s", e.BrickKey)
	}
	return fmt.Sprintf("worker failure for brick %s: %v", e.BrickKey, e.Cause)
}

func (e *WorkerFailure) Unwrap() error { return e.Cause }

// ShutdownAfterSubmit is returned by the dispatcher's Put when a submission
// arrives after Shutdown has been initiated.
type ShutdownAfterSubmit struct{}

func (e *ShutdownAfterSubmit) Error() string {
	return "submission rejected: dispatcher is shutting down"
}
