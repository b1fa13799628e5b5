package ui

import "restorepick/internal/services"

type listingMsg struct {
	session int
	path    string
	result  services.ListResult
	err     error
}

type restoreResultMsg struct {
	result services.RestoreResult
	err    error
}

type restoreProgressMsg struct {
	progress services.RestoreProgress
}
