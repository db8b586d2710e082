//go:build windows

package main

func probePTY() bool { return false }
