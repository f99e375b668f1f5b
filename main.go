package main

import "github.com/Serendipathy/cv-generation-system/cmd"

func main() {
	cmd.Execute()
}
