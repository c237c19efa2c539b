// Package http implements the local bridge between the GUI shell and the
// license engine. Handlers stay thin: they decode and validate input, call
// the engine, and render either a JSON body or an RFC 7807 problem.
//
// # Endpoints
//
// Mounted under /api/license:
//
//	GET    /status         current verdict, always 200 unless storage fails
//	GET    /machine-code   machine code to quote when requesting a license
//	POST   /commit         store a license code, then report the new verdict
//	DELETE /authorization  clear the stored record
//	GET    /debug          fingerprint components and store location
//	GET    /events         WebSocket stream of verdict changes
//
// An unauthorized installation is not an error. The verdict carries the
// reason and the GUI decides what to show.
//
// # Event stream
//
// A client connecting to /events first receives the current verdict, then a
// connect message, then one license:verdict message after every commit or
// reauthorization:
//
//	{
//	  "id": "3f0c...",
//	  "type": "license:verdict",
//	  "timestamp": "2024-05-01T12:30:45Z",
//	  "data": {"authorized": true, "reason": "valid", ...}
//	}
//
// # Errors
//
// Failures are mapped by the errors package:
//
//	invalid request body      400 /errors/invalid-input
//	too many commits          429 /errors/rate-limit (with Retry-After)
//	record unreadable on disk 500 /errors/persistence
package http
