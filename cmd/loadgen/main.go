// Copyright 2013 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command loadgen streams synthetic StatsD lines to a TCP endpoint as fast
// as it can, printing a throughput line every printInterval lines.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

const printInterval = 1000000

func main() {
	endpoint := kingpin.Flag("endpoint", "TCP endpoint to stream generated lines to.").Short('e').Default("localhost:8129").String()
	kingpin.Parse()

	conn, err := net.Dial("tcp", *endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *endpoint, err)
		os.Exit(1)
	}
	defer conn.Close()

	buf := make([]byte, 0, 131072)
	var counter uint64
	lastTime := time.Now()

	for {
		buf = buf[:0]
		buf = append(buf, fmt.Sprintf("hello.hello.hello.hello.hello.hello.hello.hello.hello:%d|c\n", counter)...)
		if _, err := conn.Write(buf); err != nil {
			fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
			os.Exit(1)
		}
		counter++

		if counter%printInterval == 0 {
			now := time.Now()
			elapsed := now.Sub(lastTime)
			lastTime = now
			rate := float64(printInterval) / elapsed.Seconds()
			fmt.Printf("%s: sent %15d lines in %5dms (%.0f l/s)\n",
				now.Format("15:04:05"), counter, elapsed.Milliseconds(), rate)
		}
	}
}
