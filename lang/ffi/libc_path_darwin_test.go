//go:build darwin

package ffi_test

const testLibcPath = "/usr/lib/libSystem.B.dylib"
