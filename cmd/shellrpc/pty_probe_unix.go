//go:build !windows

package main

import "github.com/creack/pty"

func probePTY() bool {
	p, t, err := pty.Open()
	if err != nil {
		return false
	}
	_ = p.Close()
	_ = t.Close()
	return true
}
