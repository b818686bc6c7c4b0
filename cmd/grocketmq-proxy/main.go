// Command grocketmq-proxy runs the RocketMQ proxy front end and offers operator
// commands for the topic table and for talking to a broker directly.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
