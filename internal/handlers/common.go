// common.go
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

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/middleware"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/types"
	"github.com/localnerve/contentdb/internal/utils"
)

// statusOf maps a ContentError kind to its HTTP status
var statusOf = map[services.Kind]int{
	services.KindNotFound:    fiber.StatusNotFound,
	services.KindVersion:     fiber.StatusConflict,
	services.KindLock:        fiber.StatusLocked,
	services.KindDuplicateID: fiber.StatusConflict,
	services.KindValidation:  fiber.StatusBadRequest,
	services.KindConflict:    fiber.StatusConflict,
	services.KindForbidden:   fiber.StatusForbidden,
	services.KindStorage:     fiber.StatusInternalServerError,
}

// contentError renders a service error. Storage failures are opaque.
func contentError(c *fiber.Ctx, err error, operation string) error {
	var ce *services.ContentError
	if !errors.As(err, &ce) {
		return utils.ErrorResponse(c, "Internal server error", fiber.StatusInternalServerError, operation)
	}

	status, ok := statusOf[ce.Kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	switch ce.Kind {
	case services.KindVersion:
		return utils.VersionErrorResponse(c, ce.Message, ce.CurrentVersion)
	case services.KindLock:
		extra := fiber.Map{}
		if ce.Holder != nil {
			extra["holder"] = fiber.Map{
				"lockedBy":  ce.Holder.LockedBy,
				"sessionId": ce.Holder.SessionID,
				"lockedAt":  ce.Holder.LockedAt,
				"expiresAt": ce.Holder.ExpiresAt,
			}
		}
		return utils.DetailedErrorResponse(c, ce.Message, status, string(ce.Kind), extra)
	case services.KindDuplicateID, services.KindValidation:
		var extra fiber.Map
		if ce.BlockID != "" {
			extra = fiber.Map{"blockId": ce.BlockID}
		}
		return utils.DetailedErrorResponse(c, ce.Message, status, string(ce.Kind), extra)
	case services.KindStorage:
		return utils.ErrorResponse(c, "Internal server error", status, operation)
	}
	return utils.ErrorResponse(c, ce.Message, status, string(ce.Kind))
}

// actorFrom returns the identified caller. Routes that need one are guarded
// by middleware.RequireUser, so a miss here is a wiring error.
func actorFrom(c *fiber.Ctx) (services.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return services.Actor{}, &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "An authenticated user is required",
			Type:    "content.authorization",
		}
	}
	return actor, nil
}

// parseBody decodes the JSON body into v. The returned error is rendered as a
// 400 by ErrorHandler.
func parseBody(c *fiber.Ctx, v interface{}, operation string) error {
	if err := c.BodyParser(v); err != nil {
		return badRequest("Invalid request body: "+err.Error(), operation)
	}
	return nil
}

func badRequest(message, operation string) error {
	return &types.CustomError{Code: fiber.StatusBadRequest, Message: message, Type: operation}
}

// expectedVersion reads expectedVersion from the body value, falling back to
// the expectedVersion query parameter
func expectedVersion(c *fiber.Ctx, fromBody *types.Version, operation string) (uint64, error) {
	if fromBody != nil {
		return fromBody.Uint64(), nil
	}
	q := c.Query("expectedVersion")
	if q == "" {
		return 0, badRequest("expectedVersion is required", operation)
	}
	v, err := types.ParseVersion(q)
	if err != nil {
		return 0, badRequest("expectedVersion: "+err.Error(), operation)
	}
	return v.Uint64(), nil
}

// optionalIndex turns a missing index into "append"
func optionalIndex(index *int) int {
	if index == nil {
		return -1
	}
	return *index
}
