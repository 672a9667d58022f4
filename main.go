package main

import "github.com/TerriaJS/terriajs-sub017/cmd"

func main() {
	cmd.Execute()
}
