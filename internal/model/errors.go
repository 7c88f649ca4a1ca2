package model

import (
	"fmt"
	"strings"
)

// UnknownSourceError is returned when no platform/channel signature matches
// the input columns. Callers must treat it as a hard validation failure.
type UnknownSourceError struct {
	Columns []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown data source: no platform signature matched columns [%s]",
		strings.Join(e.Columns, ", "))
}

// MissingRequiredFieldsError is returned when a required column for the
// selected (source, channel, goal) combination is absent from the input.
type MissingRequiredFieldsError struct {
	Source  Source
	Channel Channel
	Goal    Goal
	Fields  []string
}

func (e *MissingRequiredFieldsError) Error() string {
	return fmt.Sprintf("missing required fields for %s %s %s: [%s]",
		e.Source, e.Channel, e.Goal, strings.Join(e.Fields, ", "))
}

// EmptyResultError is returned when no rows survive preprocessing and
// minimum-volume filtering.
type EmptyResultError struct {
	Stage string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no rows remaining after %s", e.Stage)
}
