package sched

import "os"

// osExit is a var, not a direct os.Exit call, purely so other files in this
// package stay free of a direct "os" import outside this one line.
var osExit = os.Exit
