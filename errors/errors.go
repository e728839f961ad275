package errors

import "fmt"

var (
	ErrRoomExists       = fmt.Errorf("room already exists")
	ErrRoomNameRequired = fmt.Errorf("room name is required")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrRoomFull         = fmt.Errorf("room is full")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)
