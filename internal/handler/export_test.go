package handler

var (
	ToTaskDTO        = toTaskDTO
	TaskEventForUser = taskEventForUser
)
