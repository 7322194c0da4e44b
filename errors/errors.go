package errors

import "fmt"

var (
	ErrMessageNotFound   = fmt.Errorf("message not found")
	ErrUserNotFound      = fmt.Errorf("user not found")
	ErrUserAlreadyExists = fmt.Errorf("user already exists")
	ErrInvalidPassword   = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidCredential = fmt.Errorf("invalid email or password")
	ErrUnknownFlag       = fmt.Errorf("unknown message flag")
)
