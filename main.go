/*
Copyright © 2026 The pgmentor Authors
*/
package main

import "github.com/pgmentor/pgmentor/cmd"

func main() {
	cmd.Execute()
}
