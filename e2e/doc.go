//go:build e2e

// Package e2e runs the harness against the real Momo client.
//
// These tests are isolated from the standard test suite via build tags.
// They need a built client (MOMO_EXECUTABLE or _build/<target>/release/momo/momo)
// and, for some tests, network access to signaling servers.
//
// Running E2E tests:
//
//	go test -tags=e2e ./e2e/...
//
// Running all tests except E2E:
//
//	go test ./...
//
// Sora tests are skipped unless TEST_SORA_MODE_SIGNALING_URLS,
// TEST_SORA_MODE_CHANNEL_ID_PREFIX and TEST_SORA_MODE_SECRET_KEY are set
// (a .env file in this directory is read too). Ayame tests use
// TEST_AYAME_SIGNALING_URL, defaulting to the public Ayame Labo server.
// Hardware encoder tests also need INTEL_VPL, NVIDIA_VIDEO_CODEC,
// APPLE_VIDEO_TOOLBOX, RASPBERRY_PI or OPENH264_PATH.
//
// The browser test uses Rod to drive Chrome against the client's p2p page.
// Chrome is auto-downloaded by Rod if not present.
//
// Test isolation:
// Every client gets its own metrics and p2p ports from a shared allocator,
// so tests can run in parallel.
package e2e
