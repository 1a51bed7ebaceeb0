//go:build linux

package ffi_test

const testLibcPath = "libc.so.6"
