package main

const (
	exitCodeSuccess = 0
	exitCodeUsage   = 1
	exitCodeConfig  = 2
	exitCodeWatch   = 3
	exitCodeRuntime = 4
)
