// Command aipassctl is a development client for the AI-Pass backend.
package main

func main() {
	Execute()
}
