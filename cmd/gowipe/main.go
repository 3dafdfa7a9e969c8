package main

import "github.com/dbsmedya/gowipe/cmd/gowipe/cmd"

func main() {
	cmd.Execute()
}
