package main

import "github.com/XiaoTianFan/music-cluster/cmd"

func main() {
	cmd.Execute()
}
