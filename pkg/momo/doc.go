// Package momo drives a Momo media client process for end-to-end tests.
//
// A Controller owns exactly one client process. It spawns the executable
// with arguments derived from a mode-specific Config, blocks until the
// client's metrics endpoint answers, and exposes timeout-bounded accessors
// for the WebRTC statistics the client reports:
//
//	ctrl, err := momo.New(&momo.P2PConfig{
//		CommonOptions: momo.CommonOptions{FakeCaptureDevice: true},
//	}, momo.WithPortAllocator(ports))
//	if err != nil {
//		return err
//	}
//	if err := ctrl.Start(ctx); err != nil {
//		return err
//	}
//	defer ctrl.Stop()
//
//	snap, err := ctrl.WaitForStats(ctx, []momo.WaitCondition{
//		{"type": "codec", "mimeType": "video/H264"},
//	}, momo.DefaultWaitOptions())
//
// Every blocking call polls with a wall-clock deadline; network requests
// carry their own short timeouts so a hung request cannot stretch a
// deadline by more than one request timeout.
package momo
