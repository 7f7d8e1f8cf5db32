//go:build notmuch && cgo

package notmuch

// #include <stdint.h>
import "C"

import "unsafe"

//export nmgoCompactStatus
func nmgoCompactStatus(message *C.char, closure unsafe.Pointer) {
	compactStatusTrampoline(uintptr(closure), C.GoString(message))
}

//export nmgoUpgradeProgress
func nmgoUpgradeProgress(closure unsafe.Pointer, progress C.double) {
	upgradeProgressTrampoline(uintptr(closure), float64(progress))
}
