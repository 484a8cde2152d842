// Command phantomas opens a web page in a headless browser, lets the
// instrumentation modules observe it until the network settles and prints
// the collected metrics.
package main

func main() {
	Execute()
}
