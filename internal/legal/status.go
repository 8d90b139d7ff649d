package legal

import "fmt"

type StatusKind string

const (
	StatusIdle    StatusKind = "idle"
	StatusSaving  StatusKind = "saving"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// Status is the user-visible outcome of a submission.
type Status struct {
	Kind     StatusKind `json:"kind"`
	Message  string     `json:"message"`
	Location string     `json:"location,omitempty"`
}

func Saving() Status {
	return Status{Kind: StatusSaving, Message: "Saving legal details..."}
}

func Success(location string) Status {
	return Status{
		Kind:     StatusSuccess,
		Message:  fmt.Sprintf("Saved legal details to %s.", location),
		Location: location,
	}
}

func Failure(msg string) Status {
	return Status{Kind: StatusError, Message: "Could not save legal details: " + msg}
}
