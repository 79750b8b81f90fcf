package handlers

import "github.com/gofiber/fiber/v3"

// ErrCacheUnavailable is returned when the API runs without a cache
var ErrCacheUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "cache is not available")

// ErrQueueUnavailable is returned when the API runs without a task queue
var ErrQueueUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "task queue is not available")

// ErrInputRequired is returned when a track request names no input file
var ErrInputRequired = fiber.NewError(fiber.StatusBadRequest, "input is required")
