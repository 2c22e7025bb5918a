package models

import "errors"

var (
	// ErrNotFound is returned by stores when the addressed document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNumberTaken is returned when a submission number is already used for
	// the same (participant, program, session) key.
	ErrNumberTaken = errors.New("submission number already taken")
)
