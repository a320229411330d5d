// Package pkg provides shared utilities for the dwmmc controller engine.
//
// This package contains common functionality used by the register layer,
// the DesignWare driver and the simulator, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for the engine's error taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with controller-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentClock, "clock configured", "divisor", 125)
//
// # Errors
//
// Every error returned by the engine wraps one of the sentinel values:
//
//	if errors.Is(err, pkg.ErrFatalTimeout) {
//	    // controller is wedged; stop the boot flow
//	}
//
// [Recoverable] tells a caller whether reissuing the operation can help.
package pkg
