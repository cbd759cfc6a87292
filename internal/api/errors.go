package api

import "github.com/gofiber/fiber/v3"

var ErrInvalidQueryParameters = fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")

var ErrTokenRequired = fiber.NewError(fiber.StatusBadRequest, "token is required")

var ErrUnsupportedToken = fiber.NewError(fiber.StatusNotFound, "token is not part of the pool")

var ErrPoolUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "pool is not initialized")

var ErrQueryFailedInternal = fiber.NewError(fiber.StatusInternalServerError, "query failed")

// NewInvalidAddress reports a malformed address parameter.
func NewInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

// NewInvalidTimestamp reports a malformed ts parameter.
func NewInvalidTimestamp(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid ts: "+err.Error())
}
