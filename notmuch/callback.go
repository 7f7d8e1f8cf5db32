package notmuch

import "sync"

// Engine calls that report progress cannot carry Go values: they accept a
// plain function pointer and one opaque word of context. The registry below
// maps that word to the caller's func for the duration of one engine call.

type callbackSlot struct {
	fn       any
	panicked bool
	panicVal any
}

var callbacks = struct {
	mu    sync.RWMutex
	slots map[uintptr]*callbackSlot
	next  uintptr
}{
	slots: make(map[uintptr]*callbackSlot),
	next:  1,
}

func registerCallback(fn any) uintptr {
	callbacks.mu.Lock()
	defer callbacks.mu.Unlock()
	id := callbacks.next
	callbacks.next++
	if callbacks.next == 0 {
		callbacks.next = 1
	}
	callbacks.slots[id] = &callbackSlot{fn: fn}
	return id
}

func lookupCallback(id uintptr) *callbackSlot {
	if id == 0 {
		return nil
	}
	callbacks.mu.RLock()
	defer callbacks.mu.RUnlock()
	return callbacks.slots[id]
}

func unregisterCallback(id uintptr) *callbackSlot {
	callbacks.mu.Lock()
	defer callbacks.mu.Unlock()
	slot := callbacks.slots[id]
	delete(callbacks.slots, id)
	return slot
}

// registeredCallbacks returns the number of callbacks currently bound to an
// engine call.
func registeredCallbacks() int {
	callbacks.mu.RLock()
	defer callbacks.mu.RUnlock()
	return len(callbacks.slots)
}

// bridge binds fn to a closure word for the duration of call. A nil fn passes
// word 0, which engines translate to a NULL trampoline and NULL context.
// A panic raised by fn inside the engine call is re-raised here, after the
// engine has returned.
func bridge(fn any, call func(closure uintptr) Status) Status {
	if fn == nil {
		return call(0)
	}
	id := registerCallback(fn)
	var st Status
	func() {
		defer unregisterCallback(id)
		st = call(id)
		if slot := lookupCallback(id); slot != nil && slot.panicked {
			panic(slot.panicVal)
		}
	}()
	return st
}

// invoke runs f for the slot bound to closure, converting a panic into a
// recorded value so it never unwinds through engine frames.
func invoke(closure uintptr, f func(fn any)) {
	slot := lookupCallback(closure)
	if slot == nil || slot.panicked {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slot.panicked = true
			slot.panicVal = r
		}
	}()
	f(slot.fn)
}

// compactStatusTrampoline is called by the engine for each compaction status
// message.
func compactStatusTrampoline(closure uintptr, message string) {
	invoke(closure, func(fn any) {
		if status, ok := fn.(func(string)); ok {
			status(message)
		}
	})
}

// upgradeProgressTrampoline is called by the engine as an upgrade advances.
func upgradeProgressTrampoline(closure uintptr, progress float64) {
	invoke(closure, func(fn any) {
		progressFn, ok := fn.(func(float64))
		if !ok {
			return
		}
		switch {
		case progress < 0 || progress != progress:
			progress = 0
		case progress > 1:
			progress = 1
		}
		progressFn(progress)
	})
}
