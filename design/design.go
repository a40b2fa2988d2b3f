package design

import (
	. "goa.design/goa/v3/dsl"
)

// API definition
var _ = API("lensd", func() {
	Title("Signature Lens Daemon")
	Description("Single-lens styled camera pipeline: live preview, subject-aware look, styled still capture")
	Version("1.0")
	Server("lensd", func() {
		Host("localhost", func() {
			URI("http://localhost:8088")
		})
	})
})

// Error types
var NotFoundError = Type("NotFoundError", func() {
	Description("Resource not found error")
	Field(1, "message", String, "Error message")
	Field(2, "id", String, "Resource ID")
	Required("message", "id")
})

var BadRequestError = Type("BadRequestError", func() {
	Description("Bad request error")
	Field(1, "message", String, "Error message")
	Field(2, "details", String, "Error details")
	Required("message")
})

var InternalError = Type("InternalError", func() {
	Description("Internal server error")
	Field(1, "message", String, "Error message")
	Required("message")
})

var ConflictError = Type("ConflictError", func() {
	Description("Operation conflicts with the current pipeline state")
	Field(1, "message", String, "Error message")
	Field(2, "state", String, "Current controller state")
	Required("message", "state")
})

// Data types
var CaptureInfo = Type("CaptureInfo", func() {
	Description("One saved styled still")
	Field(1, "id", String, "Capture unique identifier", func() {
		Format(FormatUUID)
	})
	Field(2, "width", Int, "Image width in pixels")
	Field(3, "height", Int, "Image height in pixels")
	Field(4, "subject_present", Boolean, "Whether the subject branch of the look was applied")
	Field(5, "size_bytes", Int64, "Encoded JPEG size")
	Field(6, "created_at", String, "Creation timestamp", func() {
		Format(FormatDateTime)
	})
	Required("id", "width", "height", "subject_present", "created_at")
})

var PipelineStatus = Type("PipelineStatus", func() {
	Description("Current pipeline state")
	Field(1, "state", String, "Controller state", func() {
		Enum("idle", "opening", "preview", "capturing")
	})
	Field(2, "device", String, "Configured device identifier")
	Field(3, "preview_resolution", String, "Active preview resolution")
	Field(4, "capture_resolution", String, "Active capture resolution")
	Field(5, "subject_present", Boolean, "Current subject-presence flag")
	Field(6, "dropped_frames", Int64, "Preview frames dropped under pressure")
	Field(7, "last_error", String, "Reason for the most recent forced teardown")
	Required("state", "device")
})

var LoginResult = Type("LoginResult", func() {
	Description("Issued control-API token")
	Field(1, "token", String, "Bearer token")
	Field(2, "expires_at", Int64, "Expiry as Unix timestamp")
	Required("token", "expires_at")
})

// Health check service
var _ = Service("health", func() {
	Description("Health check endpoints for probes")

	Method("healthz", func() {
		Description("Liveness probe endpoint")
		Result(Empty)
		HTTP(func() {
			GET("/healthz")
			Response(StatusOK)
		})
	})
})

// Authentication service
var _ = Service("auth", func() {
	Description("Operator login")

	Method("login", func() {
		Description("Exchange operator credentials for a bearer token")
		Payload(func() {
			Field(1, "username", String, "Operator username")
			Field(2, "password", String, "Operator password")
			Required("username", "password")
		})
		Result(LoginResult)
		Error("bad_request", BadRequestError, "Invalid credentials")
		HTTP(func() {
			POST("/api/login")
			Response(StatusOK)
			Response("bad_request", StatusUnauthorized)
		})
	})
})

// Pipeline control service
var _ = Service("pipeline", func() {
	Description("Preview and capture control for the single lens")

	Method("status", func() {
		Description("Get the current pipeline state")
		Result(PipelineStatus)
		HTTP(func() {
			GET("/api/status")
			Response(StatusOK)
		})
	})

	Method("start_preview", func() {
		Description("Open the device and start the styled preview stream")
		Result(PipelineStatus)
		Error("internal", InternalError, "Device or session could not be established")
		HTTP(func() {
			POST("/api/preview/start")
			Response(StatusOK)
			Response("internal", StatusInternalServerError)
		})
	})

	Method("stop_preview", func() {
		Description("Stop the preview and release the device; idempotent")
		Result(PipelineStatus)
		HTTP(func() {
			POST("/api/preview/stop")
			Response(StatusOK)
		})
	})

	Method("capture", func() {
		Description("Take one styled full-resolution still and store it")
		Result(CaptureInfo)
		Error("conflict", ConflictError, "Preview is not active")
		Error("internal", InternalError, "Capture failed")
		HTTP(func() {
			POST("/api/capture")
			Response(StatusCreated)
			Response("conflict", StatusConflict)
			Response("internal", StatusInternalServerError)
		})
	})
})

// Capture catalog service
var _ = Service("captures", func() {
	Description("Saved styled stills")

	Method("list", func() {
		Description("List recent captures, newest first")
		Payload(func() {
			Field(1, "limit", Int, "Maximum number of captures to return", func() {
				Default(50)
				Maximum(500)
			})
		})
		Result(ArrayOf(CaptureInfo))
		HTTP(func() {
			GET("/api/captures")
			Param("limit")
			Response(StatusOK)
		})
	})

	Method("get", func() {
		Description("Get capture metadata by ID")
		Payload(func() {
			Field(1, "id", String, "Capture ID", func() {
				Format(FormatUUID)
			})
			Required("id")
		})
		Result(CaptureInfo)
		Error("not_found", NotFoundError, "Capture not found")
		HTTP(func() {
			GET("/api/captures/{id}")
			Response(StatusOK)
			Response("not_found", StatusNotFound)
		})
	})

	Method("image", func() {
		Description("Get the stored JPEG for a capture")
		Payload(func() {
			Field(1, "id", String, "Capture ID", func() {
				Format(FormatUUID)
			})
			Required("id")
		})
		Result(Bytes)
		Error("not_found", NotFoundError, "Capture not found")
		HTTP(func() {
			GET("/api/captures/{id}/image")
			Response(StatusOK, func() {
				ContentType("image/jpeg")
			})
			Response("not_found", StatusNotFound)
		})
	})

	Method("delete", func() {
		Description("Delete a capture and its image file")
		Payload(func() {
			Field(1, "id", String, "Capture ID", func() {
				Format(FormatUUID)
			})
			Required("id")
		})
		Result(Empty)
		Error("not_found", NotFoundError, "Capture not found")
		HTTP(func() {
			DELETE("/api/captures/{id}")
			Response(StatusNoContent)
			Response("not_found", StatusNotFound)
		})
	})
})
