package types

import "fmt"

// CustomError is an error that already knows its HTTP status. Middleware
// returns it and the application error handler renders it.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}
