package main

import "github.com/kebairia/cloudbak/cmd"

func main() {
	cmd.Execute()
}
