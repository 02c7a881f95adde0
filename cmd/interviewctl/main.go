// Package main runs the interview operator CLI.
package main

import "github.com/louisbranch/mockinterview/internal/cmd/interviewctl"

func main() {
	interviewctl.Execute()
}
