// Package mmio defines the register access layer used by controller drivers.
//
// A [Bus] is a window of 32-bit hardware registers addressed by byte offset
// from a fixed base. Drivers never dereference hardware addresses directly;
// they go through a Bus so the same driver runs against real hardware (see
// [github.com/ardnew/dwmmc/mmio/devmem]) or against a software model (see
// [github.com/ardnew/dwmmc/dwmmc/sim]).
//
// # Ordering
//
// Individual accesses are volatile: every Read32 and Write32 reaches the
// device in program order. [Bus.Barrier] is an explicit store barrier for
// the places where a driver must make one write visible before another
// (for example, the command argument before the command word).
//
// # Tracing
//
// [Trace] decorates any Bus and logs every access at debug level:
//
//	bus := mmio.Trace(window, "dwmmc")
package mmio
