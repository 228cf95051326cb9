// Siivo - Stale Block-Storage Sweeper
// List. Evaluate. Delete. Done.
package main

func main() {
	Execute()
}
