//go:build linux || darwin

package crypto

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocLocked returns an n byte buffer placed on a page that no other
// allocation shares, together with that page once it is mlocked. mlock does
// not nest, so every locked key gets a page of its own. page is nil when the
// buffer could not be locked.
func allocLocked(n int) (buf, page []byte) {
	size := unix.Getpagesize()
	if n <= 0 || n > size {
		return make([]byte, n), nil
	}
	raw := make([]byte, 2*size)
	off := (size - int(uintptr(unsafe.Pointer(&raw[0]))%uintptr(size))) % size
	page = raw[off : off+size : off+size]
	if err := unix.Mlock(page); err != nil {
		return make([]byte, n), nil
	}
	return page[:n:n], page
}

func unlockPage(page []byte) {
	if len(page) == 0 {
		return
	}
	_ = unix.Munlock(page)
}
