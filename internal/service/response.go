package service

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// bodyVersion is the response format version merged into every body.
const bodyVersion = "2.0"

// Response is the uniform outbound envelope: status, a fixed header set,
// and a JSON body.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// securityHeaders returns the CORS and security headers attached to every
// response, success or failure.
func securityHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*", // TODO: restrict in production
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization",
		"Access-Control-Max-Age":       "86400",
		"Content-Type":                 "application/json",
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"X-XSS-Protection":             "1; mode=block",
		"Content-Security-Policy":      "default-src 'none'",
		"Referrer-Policy":              "strict-origin-when-cross-origin",
	}
}

func successResponse(data map[string]any, requestID string) Response {
	body := make(map[string]any, len(data)+3)
	maps.Copy(body, data)
	body["request_id"] = requestID
	body["timestamp"] = time.Now().Unix()
	body["version"] = bodyVersion
	return Response{
		Status:  200,
		Headers: securityHeaders(),
		Body:    mustJSON(body),
	}
}

func errorResponse(e *Error, requestID string) Response {
	body := map[string]any{
		"error":      e.Message,
		"error_code": e.Code,
		"request_id": requestID,
		"timestamp":  time.Now().Unix(),
		"version":    bodyVersion,
	}
	return Response{
		Status:  e.Status,
		Headers: securityHeaders(),
		Body:    mustJSON(body),
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Bodies are built from plain strings, ints, and bools only.
		panic(fmt.Sprintf("service: marshal response body: %v", err))
	}
	return b
}
