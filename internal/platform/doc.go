// Package platform declares the contracts murmur consumes from the outside
// world: session validation, content fetching, reply sending and AI
// composition, plus the content and watermark types that flow across them.
//
// Concrete implementations live under internal/services (the HTTP platform
// bridge, the OpenRouter and Gemini composers); tests use the fakes in
// internal/testsupport.
package platform
