// response.go
//
// Versioned block content, edit leases and comment threads for wiki pages
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of contentdb.
// contentdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// contentdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with contentdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package utils

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SuccessResponse sends a standard success response
func SuccessResponse(c *fiber.Ctx, data interface{}, status int) error {
	return c.Status(status).JSON(data)
}

// ErrorResponse sends a standard error response
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return DetailedErrorResponse(c, message, status, errorType, nil)
}

// DetailedErrorResponse sends an error response with extra fields merged in
func DetailedErrorResponse(c *fiber.Ctx, message string, status int, errorType string, extra fiber.Map) error {
	body := fiber.Map{
		"status":    status,
		"message":   message,
		"ok":        false,
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      errorType,
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// VersionErrorResponse sends a version conflict error (409) carrying the
// version the client must reconcile with
func VersionErrorResponse(c *fiber.Ctx, message string, currentVersion uint64) error {
	return DetailedErrorResponse(c, message, fiber.StatusConflict, "version", fiber.Map{
		"versionError":   true,
		"currentVersion": fmt.Sprintf("%d", currentVersion),
	})
}

// MutationSuccessResponse sends a success response for content mutations
func MutationSuccessResponse(c *fiber.Ctx, newVersion uint64, changeType string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":    "Success",
		"ok":         true,
		"newVersion": fmt.Sprintf("%d", newVersion),
		"changeType": changeType,
		"timestamp":  timestamp(),
		"data":       data,
	})
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status         int         `json:"status"`
	Message        string      `json:"message"`
	Ok             bool        `json:"ok"`
	Timestamp      string      `json:"timestamp"`
	URL            string      `json:"url"`
	Type           string      `json:"type,omitempty"`
	VersionError   bool        `json:"versionError,omitempty"`
	CurrentVersion string      `json:"currentVersion,omitempty"`
	BlockID        string      `json:"blockId,omitempty"`
	Holder         interface{} `json:"holder,omitempty"`
}

// SuccessResponseStruct defines the schema for mutation success responses
type SuccessResponseStruct struct {
	Message    string      `json:"message"`
	Ok         bool        `json:"ok"`
	NewVersion string      `json:"newVersion"`
	ChangeType string      `json:"changeType"`
	Timestamp  string      `json:"timestamp"`
	Data       interface{} `json:"data"`
}
